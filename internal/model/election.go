package model

import (
	"sort"
	"strconv"
	"time"
)

// Election is a single election event with a validity window used to
// resolve the default election for browsing.
type Election struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ShortName    string    `json:"short_name"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	ElectionDate time.Time `json:"election_date"`
	Types        []string  `json:"election_types,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Year returns the calendar year of the election date.
func (e Election) Year() int {
	return e.ElectionDate.Year()
}

// Active reports whether now falls inside the election's validity window.
func (e Election) Active(now time.Time) bool {
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return false
	}
	return !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// ResolveActive picks the default election: the active one with the earliest
// election date, falling back to the first election in the list.
func ResolveActive(elections []Election, now time.Time) *Election {
	if len(elections) == 0 {
		return nil
	}
	var active []Election
	for _, e := range elections {
		if e.Active(now) {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		first := elections[0]
		return &first
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].ElectionDate.Before(active[j].ElectionDate)
	})
	return &active[0]
}

// PlaceholderElection builds the election created when an import targets a
// year with no election on record.
func PlaceholderElection(year int) Election {
	return Election{
		Name:         strconv.Itoa(year) + "年地方公職人員選舉",
		ShortName:    strconv.Itoa(year) + "地方選舉",
		StartDate:    time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		ElectionDate: time.Date(year, time.November, 26, 0, 0, 0, 0, time.UTC),
	}
}
