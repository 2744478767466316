// Package geo resolves caller IPs to coarse location data and applies the
// privacy tier's redaction rules. Resolution is strictly best-effort: every
// failure mode degrades to the unknown location, never to an error on the
// serving path.
package geo

// UnknownCountry is the sentinel country for every unresolvable lookup.
const UnknownCountry = "unknown"

// postalPrefixLen is how much of a postal code survives full granularity.
const postalPrefixLen = 3

// LocationData is the redacted location attached to collected events.
type LocationData struct {
	Country      string `json:"country"`
	Region       string `json:"region,omitempty"`
	PostalPrefix string `json:"postal_prefix,omitempty"`
	IsEU         bool   `json:"is_eu"`
}

// Unknown is the fallback for private addresses, unparseable input, misses
// and store failures alike.
func Unknown() LocationData {
	return LocationData{Country: UnknownCountry}
}
