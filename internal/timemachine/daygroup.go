package timemachine

import "time"

// DayGroup is one calendar-day bucket of edit checkpoints, for the two-level
// day / edit-within-day history scrubber.
type DayGroup struct {
	DateKey       string    `json:"dateKey"` // "2006-01-02" in the grouping zone
	Date          time.Time `json:"date"`    // midnight of the day
	Edits         []Edit    `json:"edits"`
	LastEditIndex int       `json:"lastEditIndex"`
}

const dateKeyLayout = "2006-01-02"

// GroupByDay partitions edits into ascending calendar-day buckets in loc.
// Every edit lands in exactly one bucket; within a bucket edits keep their
// ascending order. A nil loc groups in UTC.
func GroupByDay(items []Edit, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.UTC
	}

	var groups []DayGroup
	for _, item := range items {
		local := item.MadeAt.In(loc)
		key := local.Format(dateKeyLayout)

		if n := len(groups); n > 0 && groups[n-1].DateKey == key {
			groups[n-1].Edits = append(groups[n-1].Edits, item)
			groups[n-1].LastEditIndex = item.Index
			continue
		}

		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		groups = append(groups, DayGroup{
			DateKey:       key,
			Date:          midnight,
			Edits:         []Edit{item},
			LastEditIndex: item.Index,
		})
	}
	return groups
}
