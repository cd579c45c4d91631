package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/klauern/repomirror/internal/logging"
)

// ErrCredentialInvalid is returned when a token is rejected by its service.
// It aborts the whole run before any pair is scheduled.
var ErrCredentialInvalid = errors.New("credential invalid")

// DefaultGitLabURL is the GitLab instance used when no API URL is configured.
const DefaultGitLabURL = "https://gitlab.com"

// Validator checks a token against a hosting service.
type Validator interface {
	// Validate returns nil if the service accepts the token.
	Validate(ctx context.Context, tok Token) error
	// Service names the hosting service for messages.
	Service() string
}

// GitHubValidator validates tokens by fetching the authenticated user.
type GitHubValidator struct {
	// BaseURL overrides the API endpoint (GitHub Enterprise or tests).
	BaseURL string
	// HTTPClient is the underlying client. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Service returns "github".
func (v *GitHubValidator) Service() string { return "github" }

// Validate calls GET /user with the token.
func (v *GitHubValidator) Validate(ctx context.Context, tok Token) error {
	client := github.NewClient(bearerClient(ctx, v.HTTPClient, tok))
	if v.BaseURL != "" {
		u, err := url.Parse(withTrailingSlash(v.BaseURL))
		if err != nil {
			return fmt.Errorf("invalid github API URL: %w", err)
		}
		client.BaseURL = u
	}

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: github returned %d", ErrCredentialInvalid, resp.StatusCode)
		}
		return fmt.Errorf("%w: github: %v", ErrCredentialInvalid, err)
	}

	logging.Debug("github token accepted", slog.String("login", user.GetLogin()))
	return nil
}

// GitLabValidator validates tokens by fetching the current user from the
// GitLab REST API with a bearer token.
type GitLabValidator struct {
	// BaseURL is the GitLab instance root. Defaults to DefaultGitLabURL.
	BaseURL string
	// HTTPClient is the underlying client. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Service returns "gitlab".
func (v *GitLabValidator) Service() string { return "gitlab" }

// Validate calls GET /api/v4/user with the token.
func (v *GitLabValidator) Validate(ctx context.Context, tok Token) error {
	base := v.BaseURL
	if base == "" {
		base = DefaultGitLabURL
	}

	client := bearerClient(ctx, v.HTTPClient, tok)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/v4/user", nil)
	if err != nil {
		return fmt.Errorf("invalid gitlab URL: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gitlab: %v", ErrCredentialInvalid, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gitlab returned %d", ErrCredentialInvalid, resp.StatusCode)
	}

	logging.Debug("gitlab token accepted", logging.Operation("validate"))
	return nil
}

// NewValidator returns the validator for a service name. The "none" service
// returns a nil Validator.
func NewValidator(service, apiURL string) (Validator, error) {
	switch service {
	case "gitlab":
		return &GitLabValidator{BaseURL: apiURL}, nil
	case "github":
		return &GitHubValidator{BaseURL: apiURL}, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown credential service %q", service)
	}
}

// Check pairs a token with the validator that should accept it.
type Check struct {
	// Side names the token ("source" or "destination")
	Side      string
	Token     Token
	Validator Validator
}

// ValidateAll runs every check once. Checks without a validator or token are
// skipped. Any rejection is returned as an error wrapping ErrCredentialInvalid.
func ValidateAll(ctx context.Context, checks ...Check) error {
	var errs []error
	for _, c := range checks {
		if c.Validator == nil {
			logging.Debug("credential validation disabled", slog.String("side", c.Side))
			continue
		}
		if c.Token.IsZero() {
			logging.Warn("no token configured, skipping validation", slog.String("side", c.Side))
			continue
		}
		if err := c.Validator.Validate(ctx, c.Token); err != nil {
			errs = append(errs, fmt.Errorf("%s token (%s): %w", c.Side, c.Validator.Service(), err))
		}
	}
	return errors.Join(errs...)
}

// bearerClient returns a new client that sends tok on every request. base is
// used as the underlying transport and is never modified.
func bearerClient(ctx context.Context, base *http.Client, tok Token) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok.Reveal()}))
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
