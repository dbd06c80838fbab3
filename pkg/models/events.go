package models

// IdentityChanged is raised by the device layer when a credential is
// inserted into or removed from the device hosting a terminal.
type IdentityChanged struct {
	Terminal TerminalID
	// Station is the station owning the device at the time of the change.
	Station  StationID
	Inserted bool
	// Identity is nil when no credential is left in the device.
	Identity *Contact
}

// TerminalInstalled is raised when the messenger program is installed.
type TerminalInstalled struct {
	Terminal    TerminalID
	StationHint StationID
}

// TerminalRemoved is raised when the messenger program is uninstalled or
// its device goes away.
type TerminalRemoved struct {
	Terminal TerminalID
}
