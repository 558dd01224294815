// Package timeslot models the half-open time ranges that bookings, courses and availability share.
package timeslot

import (
	"fmt"
	"sort"
	"time"

	"github.com/tutorly/service-learning/pkg/domain"
)

// Slot is the half-open interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func New(start, end time.Time) Slot {
	return Slot{Start: start.UTC(), End: end.UTC()}
}

func (s Slot) Duration() time.Duration { return s.End.Sub(s.Start) }

// Minutes rounds the duration down to whole minutes.
func (s Slot) Minutes() int64 { return int64(s.Duration() / time.Minute) }

func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Within reports whether s lies entirely inside o.
func (s Slot) Within(o Slot) bool {
	return !s.Start.Before(o.Start) && !s.End.After(o.End)
}

// Normalize validates a slot list and returns it sorted by start time.
func Normalize(slots []Slot) ([]Slot, error) {
	if len(slots) == 0 {
		return nil, domain.NewValidationError("slots", "at least one slot is required")
	}
	out := make([]Slot, len(slots))
	for i, s := range slots {
		if s.Start.IsZero() || s.End.IsZero() {
			return nil, domain.NewValidationError(fmt.Sprintf("slots[%d]", i), "start and end are required")
		}
		if !s.Start.Before(s.End) {
			return nil, domain.NewValidationError(fmt.Sprintf("slots[%d]", i), "start must be before end")
		}
		if s.Minutes() < 1 {
			return nil, domain.NewValidationError(fmt.Sprintf("slots[%d]", i), "slot must last at least one minute")
		}
		out[i] = New(s.Start, s.End)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	for i := 1; i < len(out); i++ {
		if out[i].Overlaps(out[i-1]) {
			return nil, domain.NewValidationError("slots", "slots overlap each other")
		}
	}
	return out, nil
}
