package components

import "sort"

// SortPresence sorts online identities first, then by display name with
// the identity as tiebreaker
func SortPresence(rows []PresenceRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Online != rows[j].Online {
			return rows[i].Online
		}
		if rows[i].DisplayName != rows[j].DisplayName {
			return rows[i].DisplayName < rows[j].DisplayName
		}
		return rows[i].Identity < rows[j].Identity
	})
}

// SortTerminals sorts a slice of TerminalRow by Station, then by ID
func SortTerminals(rows []TerminalRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Station != rows[j].Station {
			return rows[i].Station < rows[j].Station
		}
		return rows[i].ID < rows[j].ID
	})
}
