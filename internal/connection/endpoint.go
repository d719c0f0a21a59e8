package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint builds the per-workspace channel address. The scheme mirrors
// the base URL: https and wss map to wss, http and ws map to ws. The
// instance value disambiguates rapid remounts of the same workspace.
func Endpoint(baseURL, workspaceID, instance string) (string, error) {
	if workspaceID == "" {
		return "", fmt.Errorf("%w: empty workspace id", ErrBadEndpoint)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrBadEndpoint, baseURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrBadEndpoint, u.Scheme)
	}

	escapedPrefix := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/workspace/" + workspaceID
	u.RawPath = escapedPrefix + "/ws/workspace/" + url.PathEscape(workspaceID)
	u.RawQuery = ""
	u.Fragment = ""

	if instance != "" {
		q := url.Values{}
		q.Set("client", instance)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
