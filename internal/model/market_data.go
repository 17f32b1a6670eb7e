package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"aggregator/pkg/exception"
)

// Venue identifies an exchange feeding the aggregator.
type Venue string

func (v Venue) String() string {
	return string(v)
}

// Quote is one price level reported by a venue.
type Quote struct {
	Venue  Venue
	Price  float64
	Amount float64
}

// ParseQuote parses a venue level from its decimal string form.
// Malformed, negative or out of range values are rejected.
func ParseQuote(venue Venue, price, amount string) (Quote, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return Quote{}, errors.Wrapf(exception.ErrInvalidQuote, "price %q", price)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return Quote{}, errors.Wrapf(exception.ErrInvalidQuote, "amount %q", amount)
	}
	if p.IsNegative() || a.IsNegative() {
		return Quote{}, errors.Wrapf(exception.ErrInvalidQuote, "negative level %s@%s", amount, price)
	}

	pf, af := p.InexactFloat64(), a.InexactFloat64()
	if math.IsInf(pf, 0) || math.IsInf(af, 0) {
		return Quote{}, errors.Wrapf(exception.ErrInvalidQuote, "level %s@%s out of range", amount, price)
	}

	return Quote{
		Venue:  venue,
		Price:  pf,
		Amount: af,
	}, nil
}

// ParseQuotes converts [price, amount] pairs. One bad level rejects the whole side.
func ParseQuotes(venue Venue, levels [][2]string) ([]Quote, error) {
	quotes := make([]Quote, 0, len(levels))
	for i, lv := range levels {
		q, err := ParseQuote(venue, lv[0], lv[1])
		if err != nil {
			return nil, errors.Wrapf(err, "level %d", i)
		}
		quotes = append(quotes, q)
	}

	return quotes, nil
}

// Level converts the quote into its published form.
func (q Quote) Level() Level {
	return Level{
		Exchange: q.Venue.String(),
		Price:    q.Price,
		Amount:   q.Amount,
	}
}

// Snapshot is the entire order book reported by one venue at one point in time.
// It replaces the previous snapshot of the same venue, it is never a delta.
type Snapshot struct {
	Venue      Venue
	Bids       []Quote
	Asks       []Quote
	UpdateID   uint64
	ReceivedAt time.Time
}

// Level is a ranked price level in a Summary.
type Level struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

// Summary is the merged cross-venue top of book.
type Summary struct {
	Spread float64 `json:"spread"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}
