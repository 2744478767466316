package tierconfig

import (
	"pixelgate/internal/client"
	dErrors "pixelgate/pkg/domain-errors"
)

// Resolve derives the tier configuration from a client record. It is a pure
// function of the record.
//
// Inactive clients resolve to not_found: the serving path must not reveal
// that a deactivated registration exists. A record missing fields the tier
// requires is a store integrity violation and resolves to internal_error.
func Resolve(rec client.Record) (Config, error) {
	if !rec.IsActive {
		return Config{}, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	if !rec.PrivacyLevel.IsValid() {
		return Config{}, dErrors.New(dErrors.CodeInternal, "client record has no valid privacy level")
	}
	if !rec.Deployment.Type.IsValid() {
		return Config{}, dErrors.New(dErrors.CodeInternal, "client record has no valid deployment type")
	}
	if rec.PrivacyLevel.HashRequired() && rec.IPSalt == "" {
		return Config{}, dErrors.New(dErrors.CodeInternal, "client record is missing its ip salt")
	}

	features := rec.Features
	if features == nil {
		features = map[string]any{}
	}

	return Config{
		ClientID:     rec.ID,
		PrivacyLevel: rec.PrivacyLevel,
		Consent: Consent{
			Required:        rec.PrivacyLevel.ConsentRequired(),
			DefaultBehavior: consentBehaviorFor(rec.PrivacyLevel),
		},
		IPCollection: IPCollection{
			Enabled:      rec.IPCollectionEnabled,
			HashRequired: rec.PrivacyLevel.HashRequired(),
		},
		Geolocation: Geolocation{
			Granularity: rec.PrivacyLevel.GeoGranularity(),
		},
		Features: features,
		Deployment: Deployment{
			Type:     string(rec.Deployment.Type),
			Hostname: rec.Deployment.Hostname,
		},
	}, nil
}
