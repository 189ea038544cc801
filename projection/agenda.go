// Package projection builds the agenda views of a namespace's events.
// It only reorders and filters, it never writes.
package projection

import (
	"eventmaster/domain"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Scope string

const (
	All      Scope = "all"
	Upcoming Scope = "upcoming"
	Past     Scope = "past"
)

type Order string

const (
	DateAsc  Order = "date-asc"
	DateDesc Order = "date-desc"
	NameAsc  Order = "name-asc"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case All, Upcoming, Past:
		return Scope(s), nil
	case "":
		return All, nil
	}
	return "", fmt.Errorf("unknown scope %q (all, upcoming, past)", s)
}

func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case DateAsc, DateDesc, NameAsc:
		return Order(s), nil
	case "":
		return DateAsc, nil
	}
	return "", fmt.Errorf("unknown order %q (date-asc, date-desc, name-asc)", s)
}

// Agenda evaluates dates in a fixed location.
type Agenda struct {
	loc *time.Location
}

func NewAgenda(loc *time.Location) *Agenda {
	if loc == nil {
		loc = time.Local
	}
	return &Agenda{loc: loc}
}

// Filter keeps events starting at or after now (Upcoming) or before it (Past).
// An event whose fecha does not parse counts as past.
func (a *Agenda) Filter(events []domain.Event, scope Scope, now time.Time) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		at, ok := e.StartsAt(a.loc)
		switch scope {
		case Upcoming:
			if !ok || at.Before(now) {
				continue
			}
		case Past:
			if ok && !at.Before(now) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Sort returns a sorted copy. Undated events go last in DateAsc and first in
// DateDesc, which is DateAsc reversed. Names compare with Spanish collation,
// ignoring case and accents. Ties keep the input order.
func (a *Agenda) Sort(events []domain.Event, order Order) []domain.Event {
	out := make([]domain.Event, len(events))
	copy(out, events)
	switch order {
	case NameAsc:
		c := collate.New(language.Spanish, collate.IgnoreCase, collate.IgnoreDiacritics)
		sort.SliceStable(out, func(i, j int) bool {
			return c.CompareString(out[i].Nombre, out[j].Nombre) < 0
		})
	case DateDesc:
		sort.SliceStable(out, func(i, j int) bool { return a.compareDates(out[i], out[j]) > 0 })
	default:
		sort.SliceStable(out, func(i, j int) bool { return a.compareDates(out[i], out[j]) < 0 })
	}
	return out
}

// View filters then sorts.
func (a *Agenda) View(events []domain.Event, scope Scope, order Order, now time.Time) []domain.Event {
	return a.Sort(a.Filter(events, scope, now), order)
}

func (a *Agenda) compareDates(x, y domain.Event) int {
	dx, okX := x.StartsAt(a.loc)
	dy, okY := y.StartsAt(a.loc)
	switch {
	case !okX && !okY:
		return 0
	case !okX:
		return 1
	case !okY:
		return -1
	}
	return dx.Compare(dy)
}

func (a *Agenda) Location() *time.Location {
	return a.loc
}
