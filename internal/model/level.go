package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Level is a single (price, quantity) entry on one side of the book.
//
// Prices and quantities are kept as decimal.Decimal rather than float64:
// the upstream feed sends them as JSON strings, and re-emitting them as
// decimal strings on disk (instead of round-tripping through a float)
// keeps every archived value numerically exact. The written string is
// decimal.Decimal's canonical form, so trailing zeros the exchange sent
// are trimmed ("61234.50" is archived as "61234.5").
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// MarshalJSON renders a Level as the `["price","qty"]` pair both the wire
// schema and the archived `.jsonl` format use.
func (l Level) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 48)
	b = append(b, '[', '"')
	b = append(b, l.Price.String()...)
	b = append(b, '"', ',', '"')
	b = append(b, l.Quantity.String()...)
	b = append(b, '"', ']')
	return b, nil
}

// UnmarshalJSON accepts either `["1.23","4.5"]` or `[1.23,4.5]` — the
// upstream feed encodes levels as strings, but decimal.Decimal already
// unmarshals from both JSON strings and JSON numbers, so a plain
// two-element slice target covers either form the exchange might send.
func (l *Level) UnmarshalJSON(data []byte) error {
	var pair [2]decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("model: level must be a [price,quantity] pair: %w", err)
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}
