package migration

// IDMapping holds the legacy-identifier to new-identifier lookup tables
// built during one migration run. It is created fresh per run, consulted by
// every import step that references a foreign entity, and discarded after
// verification; it is never persisted.
type IDMapping struct {
	Users        map[string]string
	Bookings     map[string]string
	Vehicles     map[string]string
	BankAccounts map[string]string
}

// NewIDMapping creates an empty mapping.
func NewIDMapping() *IDMapping {
	return &IDMapping{
		Users:        make(map[string]string),
		Bookings:     make(map[string]string),
		Vehicles:     make(map[string]string),
		BankAccounts: make(map[string]string),
	}
}
