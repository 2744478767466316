package domainindex

import (
	"regexp"
	"strings"

	dErrors "pixelgate/pkg/domain-errors"
)

// hostnamePattern accepts dot-separated labels of letters, digits and
// hyphens, with no hyphen at a label edge.
var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

// Normalize lowercases and trims a raw domain and rejects anything that is
// not a bare hostname. Schemes, paths, queries and ports are rejected rather
// than stripped so callers cannot smuggle URLs into the index.
func Normalize(raw string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case len(domain) < 3:
		return "", dErrors.New(dErrors.CodeBadRequest, "domain must be at least 3 characters")
	case strings.Contains(domain, "://"):
		return "", dErrors.New(dErrors.CodeBadRequest, "domain must not include a scheme")
	case strings.ContainsAny(domain, "/?#"):
		return "", dErrors.New(dErrors.CodeBadRequest, "domain must not include a path or query")
	case strings.Contains(domain, ":"):
		return "", dErrors.New(dErrors.CodeBadRequest, "domain must not include a port")
	case !hostnamePattern.MatchString(domain):
		return "", dErrors.New(dErrors.CodeBadRequest, "domain contains invalid characters")
	}
	return domain, nil
}
