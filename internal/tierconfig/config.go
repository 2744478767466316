// Package tierconfig derives the structured per-client configuration that
// the pixel embeds and the collector consumes, from a client record and its
// privacy tier.
package tierconfig

import (
	"pixelgate/internal/privacy"
)

// ConsentBehavior is what the pixel does before consent is recorded.
type ConsentBehavior string

const (
	// BehaviorAllow tracks immediately; used by the standard tier.
	BehaviorAllow ConsentBehavior = "allow"
	// BehaviorBlock holds all tracking until consent arrives; used by the
	// regulated tiers.
	BehaviorBlock ConsentBehavior = "block"
)

// Consent captures the tier's consent policy.
type Consent struct {
	Required        bool            `json:"required"`
	DefaultBehavior ConsentBehavior `json:"default_behavior"`
}

// IPCollection captures how the collector must treat caller IPs.
type IPCollection struct {
	Enabled      bool `json:"enabled"`
	HashRequired bool `json:"hash_required"`
}

// Geolocation carries the tier's granularity policy for the collector.
type Geolocation struct {
	Granularity privacy.Granularity `json:"granularity"`
}

// Deployment mirrors the client record's deployment block.
type Deployment struct {
	Type     string `json:"type"`
	Hostname string `json:"hostname,omitempty"`
}

// Config is the resolved, typed configuration for one client. Features is an
// opaque passthrough the core never interprets.
type Config struct {
	ClientID     string         `json:"client_id"`
	PrivacyLevel privacy.Level  `json:"privacy_level"`
	Consent      Consent        `json:"consent"`
	IPCollection IPCollection   `json:"ip_collection"`
	Geolocation  Geolocation    `json:"geolocation"`
	Features     map[string]any `json:"features"`
	Deployment   Deployment     `json:"deployment"`
}

// consentBehaviorFor returns the tier's pre-consent default. The regulated
// tiers both block; gdpr deliberately does not get an opt-out default.
func consentBehaviorFor(level privacy.Level) ConsentBehavior {
	if level.ConsentRequired() {
		return BehaviorBlock
	}
	return BehaviorAllow
}
