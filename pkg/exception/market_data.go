package exception

import "errors"

var (
	// ErrMalformedFrame marks a venue frame that does not parse into the expected shape.
	// Connectors log it and keep reading.
	ErrMalformedFrame = errors.New("market data: malformed frame")

	// ErrSubscriptionRejected is returned when the venue acknowledgement does not match the request.
	ErrSubscriptionRejected = errors.New("market data: subscription rejected")

	ErrInvalidQuote = errors.New("market data: invalid quote")
	ErrNilVenue     = errors.New("market data: nil venue")
)
