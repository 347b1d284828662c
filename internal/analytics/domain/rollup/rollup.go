package rollup

import (
	"sort"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// BuildHourly groups readings into hourly buckets and computes per-channel
// sum and average over the non-null samples of each bucket. The result is
// sorted by (station, csq, date, hour) so repeated runs are deterministic.
func BuildHourly(readings []telemetry.Reading) []HourlyAggregate {
	grouped := make(map[HourKey][]telemetry.Reading)
	for _, reading := range readings {
		key := BucketOf(reading.StationID, reading.CSQ, reading.ObservedAt)
		grouped[key] = append(grouped[key], reading)
	}

	out := make([]HourlyAggregate, 0, len(grouped))
	for key, bucket := range grouped {
		agg := HourlyAggregate{
			StationID: key.StationID,
			CSQ:       key.CSQ,
			Date:      key.Date,
			Hour:      key.Hour,
		}
		for _, channel := range telemetry.Channels() {
			var sum float64
			var count int
			for _, reading := range bucket {
				if value, ok := reading.Values.Get(channel); ok {
					sum += value
					count++
				}
			}
			stat := ChannelStat{SampleCount: count}
			if count > 0 {
				stat.Sum = sum
				stat.Avg = RoundAvg(sum / float64(count))
			}
			agg.Stats[channel] = stat
		}
		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool {
		return lessHourKey(out[i].Key(), out[j].Key())
	})
	return out
}

// BuildDaily rolls the hourly aggregates of one date into daily rows, one per
// (station, csq). Sums add; the daily average is the mean of the per-hour
// averages weighted by each hour's sample count, falling back to an
// unweighted mean when no hour carries a count.
func BuildDaily(date time.Time, hours []HourlyAggregate) []DailyAggregate {
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	grouped := make(map[DayKey][]HourlyAggregate)
	for _, hour := range hours {
		if !hour.Date.Equal(date) {
			continue
		}
		key := DayKey{StationID: hour.StationID, CSQ: hour.CSQ, Date: date}
		grouped[key] = append(grouped[key], hour)
	}

	out := make([]DailyAggregate, 0, len(grouped))
	for key, dayHours := range grouped {
		agg := DailyAggregate{StationID: key.StationID, CSQ: key.CSQ, Date: date}
		for _, channel := range telemetry.Channels() {
			var sum, weightedAvg, plainAvg float64
			var totalCount, hoursWithData int
			for _, hour := range dayHours {
				stat := hour.Stats[channel]
				sum += stat.Sum
				if stat.SampleCount > 0 {
					weightedAvg += stat.Avg * float64(stat.SampleCount)
					totalCount += stat.SampleCount
				}
				plainAvg += stat.Avg
				if stat.Sum != 0 || stat.Avg != 0 {
					hoursWithData++
				}
			}

			stat := ChannelStat{Sum: sum, SampleCount: totalCount}
			switch {
			case totalCount > 0:
				stat.Avg = RoundAvg(weightedAvg / float64(totalCount))
			case hoursWithData > 0:
				stat.Avg = RoundAvg(plainAvg / float64(hoursWithData))
			}
			agg.Stats[channel] = stat
		}
		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].CSQ < out[j].CSQ
	})
	return out
}

// DirtyBuckets returns the distinct hourly buckets touched by the given
// pending readings, sorted for deterministic processing.
func DirtyBuckets(pending []telemetry.Reading) []HourKey {
	seen := make(map[HourKey]struct{})
	var keys []HourKey
	for _, reading := range pending {
		key := BucketOf(reading.StationID, reading.CSQ, reading.ObservedAt)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return lessHourKey(keys[i], keys[j]) })
	return keys
}

func lessHourKey(a, b HourKey) bool {
	if a.StationID != b.StationID {
		return a.StationID < b.StationID
	}
	if a.CSQ != b.CSQ {
		return a.CSQ < b.CSQ
	}
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.Hour < b.Hour
}
