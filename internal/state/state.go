// Package state holds the application state tree, the action union that
// describes every mutation of it, and the pure reducer that applies actions.
package state

import (
	"slices"

	"github.com/marcus/agencysync/internal/models"
)

// AppState is the full in-memory state. Values are treated as immutable:
// Reduce never writes into a slice it was given, so a snapshot handed to a
// reader stays valid after later reductions.
type AppState struct {
	Customers []models.Customer `json:"customers"`
	Requests  []models.Request  `json:"requests"`
	Messages  []models.Message  `json:"messages"`
	Payments  []models.Payment  `json:"payments"`
	Claims    []models.Claim    `json:"claims"`
	Agents    []models.Agent    `json:"agents"`
	Admins    []models.Admin    `json:"admins"`
}

// Counts returns the size of each collection.
func (s AppState) Counts() map[models.Collection]int {
	return map[models.Collection]int{
		models.CollectionCustomers: len(s.Customers),
		models.CollectionRequests:  len(s.Requests),
		models.CollectionMessages:  len(s.Messages),
		models.CollectionPayments:  len(s.Payments),
		models.CollectionClaims:    len(s.Claims),
		models.CollectionAgents:    len(s.Agents),
		models.CollectionAdmins:    len(s.Admins),
	}
}

// Collection returns the named collection as an untyped value for encoding.
func (s AppState) Collection(c models.Collection) (any, bool) {
	switch c {
	case models.CollectionCustomers:
		return s.Customers, true
	case models.CollectionRequests:
		return s.Requests, true
	case models.CollectionMessages:
		return s.Messages, true
	case models.CollectionPayments:
		return s.Payments, true
	case models.CollectionClaims:
		return s.Claims, true
	case models.CollectionAgents:
		return s.Agents, true
	case models.CollectionAdmins:
		return s.Admins, true
	}
	return nil, false
}

type keyed interface {
	Key() int64
}

func indexOf[T keyed](list []T, id int64) int {
	return slices.IndexFunc(list, func(v T) bool { return v.Key() == id })
}

func find[T keyed](list []T, id int64) (T, bool) {
	if i := indexOf(list, id); i >= 0 {
		return list[i], true
	}
	var zero T
	return zero, false
}

// insert appends item unless an entry with the same id exists.
func insert[T keyed](list []T, item T) []T {
	if indexOf(list, item.Key()) >= 0 {
		return list
	}
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, item)
}

// replace swaps the entry with item's id for item. Misses leave list as is.
func replace[T keyed](list []T, item T) []T {
	i := indexOf(list, item.Key())
	if i < 0 {
		return list
	}
	return replaceAt(list, i, item)
}

func replaceAt[T any](list []T, i int, item T) []T {
	out := slices.Clone(list)
	out[i] = item
	return out
}

// remove drops the entry with the given id. Misses leave list as is.
func remove[T keyed](list []T, id int64) []T {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

// dedupe keeps the first entry for every id.
func dedupe[T keyed](list []T) []T {
	seen := make(map[int64]struct{}, len(list))
	out := list[:0:0]
	for _, v := range list {
		if _, ok := seen[v.Key()]; ok {
			continue
		}
		seen[v.Key()] = struct{}{}
		out = append(out, v)
	}
	return out
}

// nextID is one greater than the largest id in list, or 1 when list is empty.
func nextID[T keyed](list []T) int64 {
	var hi int64
	for _, v := range list {
		if v.Key() > hi {
			hi = v.Key()
		}
	}
	return hi + 1
}
