package git

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/klauern/repomirror/internal/credentials"
)

const mask = "***"

// AuthURL embeds username and token into an http(s) location. Other
// locations (local paths, file://, ssh, scp-style) and empty tokens are
// returned unchanged.
func AuthURL(location, username string, tok credentials.Token) (string, error) {
	if tok.IsZero() || !isHTTP(location) {
		return location, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %s", Redact(location))
	}
	if username == "" {
		username = "oauth2"
	}
	u.User = url.UserPassword(username, tok.Reveal())
	return u.String(), nil
}

// StripAuth removes userinfo from an http(s) URL and returns the credentials
// it carried. ok is false when the URL had no password.
func StripAuth(location string) (clean, username, password string, ok bool) {
	if !isHTTP(location) {
		return location, "", "", false
	}
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location, "", "", false
	}
	password, ok = u.User.Password()
	username = u.User.Username()
	u.User = nil
	return u.String(), username, password, ok
}

func isHTTP(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

var userinfoPattern = regexp.MustCompile(`(?i)(https?://)[^/@\s]+@`)

// Redact masks URL userinfo and every non-empty secret found in text.
func Redact(text string, secrets ...string) string {
	text = userinfoPattern.ReplaceAllString(text, "${1}"+mask+"@")
	for _, s := range secrets {
		if s != "" {
			text = strings.ReplaceAll(text, s, mask)
		}
	}
	return text
}

// secretsIn collects passwords embedded in URL arguments.
func secretsIn(args []string) []string {
	var out []string
	for _, a := range args {
		if _, _, password, ok := StripAuth(a); ok && password != "" {
			out = append(out, password)
			// userinfo escaping differs from query escaping (space is %20, not +)
			if escaped := strings.TrimPrefix(url.UserPassword("", password).String(), ":"); escaped != password {
				out = append(out, escaped)
			}
		}
	}
	return out
}
