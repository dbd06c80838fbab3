package models

import "time"

// Account is a broker login. Terminals connect with one; superusers may
// also sign in to the admin pages.
type Account struct {
	ID           int        `db:"id"`
	UserName     string     `db:"username"`
	DisplayName  *string    `db:"display_name"`
	PasswordHash string     `db:"password_hash"`
	Salt         string     `db:"salt"`
	Station      *StationID `db:"station"`
	IsSuperuser  bool       `db:"is_superuser"`
	Created      time.Time  `db:"created"`
}

// CanUseStation reports whether the account may act on station. Accounts
// without a station restriction may use any station.
func (a *Account) CanUseStation(station StationID) bool {
	return a.IsSuperuser || a.Station == nil || *a.Station == station
}
