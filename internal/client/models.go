// Package client holds the client record the admission pipeline reads and
// the stores that persist it. Records are created and mutated only by the
// admin surface; the serving path treats them as read-only.
package client

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"

	"pixelgate/internal/privacy"
	dErrors "pixelgate/pkg/domain-errors"
)

// IDPattern constrains client identifiers everywhere they cross a boundary.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// DeploymentType distinguishes shared infrastructure from dedicated hosts.
type DeploymentType string

const (
	DeploymentShared    DeploymentType = "shared"
	DeploymentDedicated DeploymentType = "dedicated"
)

// IsValid checks if the deployment type is a supported enum value.
func (d DeploymentType) IsValid() bool {
	return d == DeploymentShared || d == DeploymentDedicated
}

// Deployment describes where a client's pixel traffic terminates.
type Deployment struct {
	Type     DeploymentType `json:"type"`
	Hostname string         `json:"hostname,omitempty"`
}

// Record is a client registration.
//
// Invariants:
//   - ID matches IDPattern
//   - PrivacyLevel is a valid tier
//   - IPSalt is present iff the tier requires IP hashing; generated once at
//     creation and immutable afterwards
//   - Deployment.Type is shared or dedicated; dedicated requires Hostname
type Record struct {
	ID                  string         `json:"client_id"`
	PrivacyLevel        privacy.Level  `json:"privacy_level"`
	IPCollectionEnabled bool           `json:"ip_collection_enabled"`
	IPSalt              string         `json:"-"` // never serialized to callers
	ConsentRequired     bool           `json:"consent_required"`
	Features            map[string]any `json:"features"`
	Deployment          Deployment     `json:"deployment"`
	IsActive            bool           `json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
}

// NewRecord validates inputs and constructs an active client record. Tiers
// that hash IPs get a salt generated here, exactly once.
func NewRecord(id string, level privacy.Level, ipCollection bool, features map[string]any, deployment Deployment, now time.Time) (Record, error) {
	if !IDPattern.MatchString(id) {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "client_id must match [A-Za-z0-9_-]{1,100}")
	}
	if !level.IsValid() {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "invalid privacy_level")
	}
	if !deployment.Type.IsValid() {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "deployment type must be shared or dedicated")
	}
	if deployment.Type == DeploymentDedicated && deployment.Hostname == "" {
		return Record{}, dErrors.New(dErrors.CodeBadRequest, "dedicated deployment requires a hostname")
	}
	if features == nil {
		features = map[string]any{}
	}

	rec := Record{
		ID:                  id,
		PrivacyLevel:        level,
		IPCollectionEnabled: ipCollection,
		ConsentRequired:     level.ConsentRequired(),
		Features:            features,
		Deployment:          deployment,
		IsActive:            true,
		CreatedAt:           now,
	}
	if level.HashRequired() {
		salt, err := newSalt()
		if err != nil {
			return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate ip salt")
		}
		rec.IPSalt = salt
	}
	return rec, nil
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
