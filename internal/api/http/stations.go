package apihttp

import (
	"encoding/json"
	"net/http"
	"time"

	"hydromet-cloud/internal/audit"
	stations "hydromet-cloud/internal/stations/domain"
)

// StationsHandler serves the station registry.
type StationsHandler struct {
	repo     stations.Repository
	auditLog audit.Logger
}

// NewStationsHandler constructs a StationsHandler.
func NewStationsHandler(repo stations.Repository, auditLog audit.Logger) *StationsHandler {
	return &StationsHandler{repo: repo, auditLog: auditLog}
}

// ServeHTTP handles GET and PUT /api/v1/stations.
func (h *StationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *StationsHandler) get(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		station, err := h.repo.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "query station error", http.StatusInternalServerError)
			return
		}
		if station == nil {
			http.Error(w, "station not found", http.StatusNotFound)
			return
		}
		writeJSON(w, toStationRow(*station))
		return
	}

	list, err := h.repo.List(r.Context())
	if err != nil {
		http.Error(w, "query stations error", http.StatusInternalServerError)
		return
	}
	result := make([]stationRow, 0, len(list))
	for _, station := range list {
		result = append(result, toStationRow(station))
	}
	writeJSON(w, result)
}

func (h *StationsHandler) put(w http.ResponseWriter, r *http.Request) {
	var body stationRow
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	station := stations.Station{
		ID:        body.ID,
		Name:      body.Name,
		River:     body.River,
		Basin:     body.Basin,
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Active:    body.Active,
	}
	if err := station.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.Save(r.Context(), &station); err != nil {
		http.Error(w, "store station error", http.StatusInternalServerError)
		return
	}
	if h.auditLog != nil {
		metadata, _ := json.Marshal(body)
		_ = h.auditLog.Log(r.Context(), audit.Entry{
			Actor:        r.Header.Get("X-Actor"),
			Action:       "station.put",
			ResourceType: "station",
			ResourceID:   station.ID,
			StationID:    station.ID,
			Metadata:     metadata,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

type stationRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	River     string    `json:"river,omitempty"`
	Basin     string    `json:"basin,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func toStationRow(station stations.Station) stationRow {
	return stationRow{
		ID:        station.ID,
		Name:      station.Name,
		River:     station.River,
		Basin:     station.Basin,
		Latitude:  station.Latitude,
		Longitude: station.Longitude,
		Active:    station.Active,
		CreatedAt: station.CreatedAt,
		UpdatedAt: station.UpdatedAt,
	}
}
