package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	roster := []RosterEntry{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
	}

	tests := []struct {
		name        string
		displayName string
		roster      []RosterEntry
		previous    []RosterEntry
		wantID      string
		wantOK      bool
	}{
		{
			name:        "exact match",
			displayName: "Bob",
			roster:      roster,
			wantID:      "b",
			wantOK:      true,
		},
		{
			name:        "containment match for deduplicated name",
			displayName: "Bob",
			roster: []RosterEntry{
				{ID: "a", Name: "Alice"},
				{ID: "b2", Name: "Bob (2)"},
			},
			wantID: "b2",
			wantOK: true,
		},
		{
			name:        "exact beats containment",
			displayName: "Bob",
			roster: []RosterEntry{
				{ID: "b2", Name: "Bob (2)"},
				{ID: "b", Name: "Bob"},
			},
			wantID: "b",
			wantOK: true,
		},
		{
			name:        "single new entry fallback",
			displayName: "Charlie",
			roster: []RosterEntry{
				{ID: "a", Name: "Alice"},
				{ID: "c", Name: "Renamed By Server"},
			},
			previous: []RosterEntry{{ID: "a", Name: "Alice"}},
			wantID:   "c",
			wantOK:   true,
		},
		{
			name:        "ambiguous new entries do not resolve",
			displayName: "Charlie",
			roster: []RosterEntry{
				{ID: "c1", Name: "X"},
				{ID: "c2", Name: "Y"},
			},
			previous: []RosterEntry{},
			wantOK:   false,
		},
		{
			name:        "no candidate leaves identity unknown",
			displayName: "Zoe",
			roster:      roster,
			previous:    roster,
			wantOK:      false,
		},
		{
			name:        "empty display name never string-matches",
			displayName: "",
			roster:      roster,
			previous:    roster,
			wantOK:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := Resolve(tt.displayName, tt.roster, tt.previous)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.Equal(t, tt.wantID, id)
			}
		})
	}
}
