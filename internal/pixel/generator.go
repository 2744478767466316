package pixel

import (
	"encoding/json"
	"strings"
	"time"

	"pixelgate/internal/tierconfig"
	dErrors "pixelgate/pkg/domain-errors"
)

// Version is embedded in every served script so collectors can tell which
// generation of the client runtime sent an event.
const Version = "1.3.0"

type scriptPayload struct {
	tierconfig.Config
	CollectionEndpoint string `json:"collection_endpoint"`
	PixelVersion       string `json:"pixel_version"`
	GeneratedAt        int64  `json:"generated_at"`
}

// Generate substitutes the resolved configuration into the template. Output
// is deterministic for a given configuration except for the generation
// timestamp.
func Generate(template string, cfg tierconfig.Config, collectionEndpoint string, now time.Time) (string, error) {
	payload := scriptPayload{
		Config:             cfg,
		CollectionEndpoint: collectionEndpoint,
		PixelVersion:       Version,
		GeneratedAt:        now.Unix(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode pixel configuration")
	}
	return strings.Replace(template, ConfigMarker, string(encoded), 1), nil
}
