package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UnknownLabel is the sentinel card for "unable to estimate".
const UnknownLabel = "?"

// CardValue is a single vote label drawn from a deck. On the wire it is
// either a JSON number (0, 0.5, 8) or a JSON string ("XL", "?"), and the
// wire form is preserved across a decode/encode round trip.
type CardValue struct {
	label   string
	numeric bool
}

// NumberCard builds a numeric card value.
func NumberCard(f float64) CardValue {
	return CardValue{label: strconv.FormatFloat(f, 'f', -1, 64), numeric: true}
}

// StringCard builds a textual card value.
func StringCard(s string) CardValue {
	return CardValue{label: s}
}

// UnknownCard returns the "?" sentinel.
func UnknownCard() CardValue {
	return StringCard(UnknownLabel)
}

// String returns the display form of the card.
func (v CardValue) String() string {
	return v.label
}

// IsNumeric reports whether the card is a numeric label.
func (v CardValue) IsNumeric() bool {
	return v.numeric
}

// IsUnknown reports whether the card is the "?" sentinel.
func (v CardValue) IsUnknown() bool {
	return !v.numeric && v.label == UnknownLabel
}

// Equal reports whether two cards carry the same label and kind.
func (v CardValue) Equal(o CardValue) bool {
	return v.label == o.label && v.numeric == o.numeric
}

// Number returns the numeric value of the card. ok is false for string cards.
func (v CardValue) Number() (float64, bool) {
	if !v.numeric {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.label, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// MarshalJSON emits a JSON number for numeric cards and a JSON string
// otherwise.
func (v CardValue) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return []byte(v.label), nil
	}
	return json.Marshal(v.label)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (v *CardValue) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("failed to parse card value: empty input")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to parse card value: %w", err)
		}
		*v = CardValue{label: s}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse card value: %w", err)
	}
	*v = NumberCard(f)
	return nil
}
