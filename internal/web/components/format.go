package components

import (
	"fmt"
	"time"
)

// FormatRoundTime renders a round-relative time as hh:mm:ss.
func FormatRoundTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func displayName(r PresenceRow) string {
	if r.DisplayName == "" {
		return "Unknown"
	}
	return r.DisplayName
}
