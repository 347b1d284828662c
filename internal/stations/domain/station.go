package stations

import (
	"context"
	"errors"
	"time"
)

// Station describes a monitored hydrometeorological site.
type Station struct {
	ID        string
	Name      string
	River     string
	Basin     string
	Latitude  float64
	Longitude float64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station: empty id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return errors.New("station: latitude out of range")
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return errors.New("station: longitude out of range")
	}
	return nil
}

// Repository manages station persistence.
type Repository interface {
	Get(ctx context.Context, id string) (*Station, error)
	Save(ctx context.Context, station *Station) error
	List(ctx context.Context) ([]Station, error)
}
