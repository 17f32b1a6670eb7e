// Package book merges per-venue snapshots into a ranked cross-venue summary.
package book

import (
	"cmp"
	"slices"

	"aggregator/internal/model"
)

// Book holds the latest snapshot of every venue. It is owned by a single
// goroutine and is not safe for concurrent use.
type Book struct {
	size   int
	venues map[model.Venue]model.Snapshot
	order  []model.Venue
}

// NewBook creates a book whose summaries keep at most size levels per side.
func NewBook(size int) *Book {
	if size < 0 {
		size = 0
	}
	return &Book{
		size:   size,
		venues: make(map[model.Venue]model.Snapshot),
	}
}

// Ingest replaces the snapshot of s.Venue and returns the new summary.
//
// Levels are gathered venue by venue in name order and sorted stably, so equal
// prices rank by venue name and then by the venue's own ordering.
func (b *Book) Ingest(s model.Snapshot) model.Summary {
	if _, ok := b.venues[s.Venue]; !ok {
		idx, _ := slices.BinarySearch(b.order, s.Venue)
		b.order = slices.Insert(b.order, idx, s.Venue)
	}
	b.venues[s.Venue] = s

	var bids, asks []model.Quote
	for _, venue := range b.order {
		snap := b.venues[venue]
		bids = append(bids, snap.Bids...)
		asks = append(asks, snap.Asks...)
	}

	slices.SortStableFunc(bids, func(x, y model.Quote) int {
		return cmp.Compare(y.Price, x.Price)
	})
	slices.SortStableFunc(asks, func(x, y model.Quote) int {
		return cmp.Compare(x.Price, y.Price)
	})

	summary := model.Summary{
		Bids: levels(bids, b.size),
		Asks: levels(asks, b.size),
	}
	if len(summary.Bids) > 0 && len(summary.Asks) > 0 {
		summary.Spread = summary.Asks[0].Price - summary.Bids[0].Price
	}

	return summary
}

// Venues returns the number of venues with a resident snapshot.
func (b *Book) Venues() int {
	return len(b.venues)
}

func levels(quotes []model.Quote, limit int) []model.Level {
	if len(quotes) > limit {
		quotes = quotes[:limit]
	}
	out := make([]model.Level, len(quotes))
	for i, q := range quotes {
		out[i] = q.Level()
	}
	return out
}
