package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregator/pkg/exception"
)

func TestParseQuote(t *testing.T) {
	q, err := ParseQuote("binance", "0.06822100", "12.5")
	require.NoError(t, err)
	assert.Equal(t, Quote{Venue: "binance", Price: 0.068221, Amount: 12.5}, q)

	q, err = ParseQuote("bitstamp", "0", "0")
	require.NoError(t, err)
	assert.Zero(t, q.Price)
}

func TestParseQuoteRejects(t *testing.T) {
	cases := map[string][2]string{
		"empty price":     {"", "1"},
		"garbage price":   {"abc", "1"},
		"garbage amount":  {"1", "1,5"},
		"negative price":  {"-0.1", "1"},
		"negative amount": {"1", "-2"},
		"nan":             {"NaN", "1"},
		"overflow price":  {"1e400", "1"},
		"overflow amount": {"1", "9e999"},
	}
	for name, lv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuote("binance", lv[0], lv[1])
			require.ErrorIs(t, err, exception.ErrInvalidQuote)
		})
	}
}

func TestParseQuotesAllOrNothing(t *testing.T) {
	quotes, err := ParseQuotes("binance", [][2]string{{"100", "1"}, {"99", "2"}})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 99.0, quotes[1].Price)

	quotes, err = ParseQuotes("binance", [][2]string{{"100", "1"}, {"x", "2"}})
	require.ErrorIs(t, err, exception.ErrInvalidQuote)
	assert.Nil(t, quotes)
}

func TestQuoteLevel(t *testing.T) {
	lv := Quote{Venue: "bitstamp", Price: 101, Amount: 3}.Level()
	if lv != (Level{Exchange: "bitstamp", Price: 101, Amount: 3}) {
		t.Fatalf("level mismatch: %+v", lv)
	}
}
