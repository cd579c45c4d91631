// Package credentials supplies the source and destination tokens and checks
// them against their hosting services before a run starts.
package credentials

import (
	"log/slog"
	"os"
	"strings"
)

const redacted = "[redacted]"

// Token is an opaque bearer token. Formatting or logging a Token never
// prints its value; Reveal is the only way to read it.
type Token struct {
	value string
}

// NewToken wraps a raw token value. Surrounding whitespace is trimmed.
func NewToken(s string) Token {
	return Token{value: strings.TrimSpace(s)}
}

// Reveal returns the raw token value.
func (t Token) Reveal() string {
	return t.value
}

// IsZero returns true if no token is set.
func (t Token) IsZero() bool {
	return t.value == ""
}

// String implements fmt.Stringer without exposing the value.
func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer without exposing the value.
func (t Token) GoString() string {
	return "credentials.Token(" + t.String() + ")"
}

// LogValue implements slog.LogValuer without exposing the value.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

// Provider supplies the two tokens used by a run.
type Provider interface {
	SourceToken() Token
	DestToken() Token
}

// Static is a Provider with fixed tokens.
type Static struct {
	Source Token
	Dest   Token
}

// SourceToken returns the source token.
func (s Static) SourceToken() Token { return s.Source }

// DestToken returns the destination token.
func (s Static) DestToken() Token { return s.Dest }

// EnvProvider reads tokens from environment variables. The first non-empty
// variable in each list wins.
type EnvProvider struct {
	SourceVars []string
	DestVars   []string

	// lookup defaults to os.LookupEnv
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an EnvProvider. Empty variable names are ignored.
func NewEnvProvider(sourceVars, destVars []string) *EnvProvider {
	return &EnvProvider{
		SourceVars: compact(sourceVars),
		DestVars:   compact(destVars),
		lookup:     os.LookupEnv,
	}
}

// SourceToken returns the first non-empty source token variable.
func (p *EnvProvider) SourceToken() Token {
	return p.first(p.SourceVars)
}

// DestToken returns the first non-empty destination token variable.
func (p *EnvProvider) DestToken() Token {
	return p.first(p.DestVars)
}

func (p *EnvProvider) first(vars []string) Token {
	lookup := p.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, name := range vars {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return NewToken(v)
		}
	}
	return Token{}
}

func compact(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
