// Package privacy defines the privacy tiers and the geolocation granularity
// each tier permits. The config resolver and the geolocation resolver share
// these rules so redaction cannot drift between the two paths.
package privacy

import dErrors "pixelgate/pkg/domain-errors"

// Level is the privacy tier assigned to a client.
type Level string

const (
	LevelStandard Level = "standard"
	LevelGDPR     Level = "gdpr"
	LevelHIPAA    Level = "hipaa"
)

// IsValid checks if the level is one of the supported tiers.
func (l Level) IsValid() bool {
	switch l {
	case LevelStandard, LevelGDPR, LevelHIPAA:
		return true
	}
	return false
}

// ParseLevel validates a raw tier string.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "privacy_level must be standard, gdpr or hipaa")
	}
	return l, nil
}

// ConsentRequired reports whether the tier forces consent collection.
func (l Level) ConsentRequired() bool {
	return l == LevelGDPR || l == LevelHIPAA
}

// HashRequired reports whether collected IPs must be hashed before storage.
func (l Level) HashRequired() bool {
	return l == LevelGDPR || l == LevelHIPAA
}

// Granularity is the amount of geolocation detail a tier may expose.
type Granularity string

const (
	// GranularityFull keeps country, region and postal prefix.
	GranularityFull Granularity = "full"
	// GranularityCountryEU keeps full detail outside the EU and country only
	// inside it.
	GranularityCountryEU Granularity = "country_eu"
	// GranularityCountry keeps country only, unconditionally.
	GranularityCountry Granularity = "country"
)

// GeoGranularity returns the static granularity policy for the tier.
func (l Level) GeoGranularity() Granularity {
	switch l {
	case LevelHIPAA:
		return GranularityCountry
	case LevelGDPR:
		return GranularityCountryEU
	default:
		return GranularityFull
	}
}

// AllowsRegion resolves the per-lookup decision: given whether the subject IP
// is in the EU, may region/postal detail be kept?
func (l Level) AllowsRegion(isEU bool) bool {
	switch l.GeoGranularity() {
	case GranularityCountry:
		return false
	case GranularityCountryEU:
		return !isEU
	default:
		return true
	}
}
