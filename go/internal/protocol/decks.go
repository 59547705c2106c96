package protocol

// CardDeck is the ordered set of permissible vote values for a room.
type CardDeck struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Values []CardValue `json:"values"`
}

// Contains reports whether v is a member of the deck.
func (d CardDeck) Contains(v CardValue) bool {
	for _, c := range d.Values {
		if c.Equal(v) {
			return true
		}
	}
	return false
}

func numbers(fs ...float64) []CardValue {
	values := make([]CardValue, 0, len(fs)+1)
	for _, f := range fs {
		values = append(values, NumberCard(f))
	}
	return append(values, UnknownCard())
}

func labels(ss ...string) []CardValue {
	values := make([]CardValue, 0, len(ss)+1)
	for _, s := range ss {
		values = append(values, StringCard(s))
	}
	return append(values, UnknownCard())
}

// BuiltinDecks returns the decks shipped with the client. Every deck ends
// with the "?" sentinel.
func BuiltinDecks() []CardDeck {
	return []CardDeck{
		{ID: "fibonacci", Name: "Fibonacci", Values: numbers(0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89)},
		{ID: "modified-fibonacci", Name: "Modified Fibonacci", Values: numbers(0, 0.5, 1, 2, 3, 5, 8, 13, 20, 40, 100)},
		{ID: "powers-of-2", Name: "Powers of 2", Values: numbers(0, 1, 2, 4, 8, 16, 32, 64)},
		{ID: "t-shirt", Name: "T-Shirt Sizes", Values: labels("XXS", "XS", "S", "M", "L", "XL", "XXL")},
	}
}

// DeckByID looks up a builtin deck by its id.
func DeckByID(id string) (CardDeck, bool) {
	for _, d := range BuiltinDecks() {
		if d.ID == id {
			return d, true
		}
	}
	return CardDeck{}, false
}

// DefaultDeck returns the deck used when none is configured.
func DefaultDeck() CardDeck {
	d, _ := DeckByID("fibonacci")
	return d
}
