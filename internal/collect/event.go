// Package collect ingests events posted by the pixel runtime: it authorizes
// the source domain, applies the owning client's IP policy, enriches with
// location and user agent data, and hands the result to a sink.
package collect

import (
	"strings"
	"time"

	"pixelgate/internal/client"
	"pixelgate/internal/geo"
	dErrors "pixelgate/pkg/domain-errors"
)

const maxEventTypeLen = 64

// Event is the raw payload posted to the collection endpoint.
type Event struct {
	ClientID     string         `json:"client_id"`
	EventType    string         `json:"event_type"`
	PageURL      string         `json:"page_url"`
	Referrer     string         `json:"referrer,omitempty"`
	PixelVersion string         `json:"pixel_version,omitempty"`
	OccurredAt   int64          `json:"occurred_at,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Validate checks the fields the pipeline depends on. Properties are opaque
// and pass through unchecked.
func (e Event) Validate() error {
	if !client.IDPattern.MatchString(e.ClientID) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid client id")
	}
	eventType := strings.TrimSpace(e.EventType)
	if eventType == "" || len(eventType) > maxEventTypeLen {
		return dErrors.New(dErrors.CodeBadRequest, "event_type is required")
	}
	if strings.TrimSpace(e.PageURL) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "page_url is required")
	}
	return nil
}

// UserAgentInfo is the parsed browser fingerprint attached to an event.
type UserAgentInfo struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}

// EnrichedEvent is the fully processed event delivered to sinks. IPAddress
// is empty when the client's tier disables IP collection, and a salted hash
// when the tier requires hashing.
type EnrichedEvent struct {
	Event

	Domain     string           `json:"domain"`
	IPAddress  string           `json:"ip_address,omitempty"`
	IPHashed   bool             `json:"ip_hashed"`
	Location   geo.LocationData `json:"location"`
	UserAgent  UserAgentInfo    `json:"user_agent"`
	ReceivedAt time.Time        `json:"received_at"`
}
