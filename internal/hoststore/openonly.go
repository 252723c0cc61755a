package hoststore

// openOnly hides every optional capability of a Host except Open.
type openOnly struct {
	Host
}

// OpenOnly returns h restricted to Open, as found on hosts that cannot
// enumerate their databases.
func OpenOnly(h Host) Host {
	return openOnly{Host: h}
}
