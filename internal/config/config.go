// Package config provides configuration management for repomirror.
// It supports YAML or TOML configuration files, environment variables, and sensible defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/repomirror/internal/model"
	"github.com/klauern/repomirror/internal/util"
)

// Backend names accepted by Mirror.Backend.
const (
	BackendExec  = "exec"
	BackendGoGit = "go-git"
)

// Service names accepted by the credential service fields.
const (
	ServiceGitLab = "gitlab"
	ServiceGitHub = "github"
	ServiceNone   = "none"
)

// Config represents the complete repomirror configuration.
type Config struct {
	// Mirror configures the sync engine
	Mirror MirrorConfig `yaml:"mirror" toml:"mirror"`

	// Workspace configures the scratch namespace used for working trees
	Workspace WorkspaceConfig `yaml:"workspace" toml:"workspace"`

	// Credentials configures where tokens come from and how they are checked
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`

	// Output configures reporting
	Output OutputConfig `yaml:"output" toml:"output"`
}

// MirrorConfig holds sync engine settings.
type MirrorConfig struct {
	// PairsFile is the line-oriented "source,dest" list
	PairsFile string `yaml:"pairs_file" toml:"pairs_file"`
	// Concurrency is the maximum number of pairs mirrored at once
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
	// MaxAttempts bounds the attempts per pair
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
	// RetryDelay is the fixed wait between attempts
	RetryDelay time.Duration `yaml:"retry_delay" toml:"retry_delay"`
	// PushMode is "mirror" (all refs) or "branch" (one branch)
	PushMode string `yaml:"push_mode" toml:"push_mode"`
	// Branch is the branch pushed in branch mode
	Branch string `yaml:"branch,omitempty" toml:"branch,omitempty"`
	// RemoteName is the name given to the destination remote
	RemoteName string `yaml:"remote_name" toml:"remote_name"`
	// Backend selects the git implementation (exec, go-git)
	Backend string `yaml:"backend" toml:"backend"`
	// GitBinary is the git executable used by the exec backend
	GitBinary string `yaml:"git_binary" toml:"git_binary"`
}

// WorkspaceConfig holds scratch directory settings.
type WorkspaceConfig struct {
	// ScratchDir is the parent of per-attempt working trees
	ScratchDir string `yaml:"scratch_dir" toml:"scratch_dir"`
	// StaleAfter is the age after which prune removes leftover trees
	StaleAfter time.Duration `yaml:"stale_after" toml:"stale_after"`
}

// CredentialsConfig holds token lookup and validation settings.
// Tokens themselves are never stored in the config file.
type CredentialsConfig struct {
	// SourceTokenEnv names the environment variable holding the source token
	SourceTokenEnv string `yaml:"source_token_env" toml:"source_token_env"`
	// DestTokenEnv names the environment variable holding the destination token
	DestTokenEnv string `yaml:"dest_token_env" toml:"dest_token_env"`
	// SourceUsername is the user part embedded with the source token
	SourceUsername string `yaml:"source_username" toml:"source_username"`
	// DestUsername is the user part embedded with the destination token
	DestUsername string `yaml:"dest_username" toml:"dest_username"`
	// Validate checks both tokens against their services before any sync
	Validate bool `yaml:"validate" toml:"validate"`
	// SourceService is the API used to validate the source token (gitlab, github, none)
	SourceService string `yaml:"source_service" toml:"source_service"`
	// DestService is the API used to validate the destination token
	DestService string `yaml:"dest_service" toml:"dest_service"`
	// SourceAPIURL overrides the source service API base URL
	SourceAPIURL string `yaml:"source_api_url,omitempty" toml:"source_api_url,omitempty"`
	// DestAPIURL overrides the destination service API base URL
	DestAPIURL string `yaml:"dest_api_url,omitempty" toml:"dest_api_url,omitempty"`
}

// OutputConfig holds reporting preferences.
type OutputConfig struct {
	// FailureLog is where permanently failed pairs are written
	FailureLog string `yaml:"failure_log" toml:"failure_log"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Progress shows a progress bar on terminals
	Progress bool `yaml:"progress" toml:"progress"`
	// ReportFile is where a machine-readable run report is written
	ReportFile string `yaml:"report_file,omitempty" toml:"report_file,omitempty"`
	// ReportFormat is json, yaml or markdown; empty picks it from the extension
	ReportFormat string `yaml:"report_format,omitempty" toml:"report_format,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Mirror: MirrorConfig{
			PairsFile:   "repos.txt",
			Concurrency: 10,
			MaxAttempts: 3,
			RetryDelay:  5 * time.Second,
			PushMode:    string(model.PushMirror),
			RemoteName:  "mirror",
			Backend:     BackendExec,
			GitBinary:   "git",
		},
		Workspace: WorkspaceConfig{
			ScratchDir: util.DefaultScratchRoot(),
			StaleAfter: 24 * time.Hour,
		},
		Credentials: CredentialsConfig{
			SourceTokenEnv: "REPOMIRROR_SOURCE_TOKEN",
			DestTokenEnv:   "REPOMIRROR_DEST_TOKEN",
			SourceUsername: "oauth2",
			DestUsername:   "x-access-token",
			Validate:       true,
			SourceService:  ServiceGitLab,
			DestService:    ServiceGitHub,
		},
		Output: OutputConfig{
			FailureLog: "failed_repos.txt",
			Color:      "auto",
			Progress:   true,
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the default config file.
func FilePath() string {
	return filepath.Join(util.ConfigDir(), configFileName)
}

// Load loads the configuration from the default file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	configPath := FilePath()
	// #nosec G304 - configPath is constructed from trusted config directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	if err := decode(configPath, data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path, which must exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// decode parses data over cfg, choosing the format from the file extension.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Encode(path)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Encode renders the configuration in the format implied by path's extension.
func (c *Config) Encode(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(c)
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern REPOMIRROR_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Mirror settings
	if v := os.Getenv("REPOMIRROR_MIRROR_PAIRS_FILE"); v != "" {
		c.Mirror.PairsFile = v
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Mirror.Concurrency = n
		}
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Mirror.MaxAttempts = n
		}
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Mirror.RetryDelay = d
		}
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_PUSH_MODE"); v != "" {
		c.Mirror.PushMode = v
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_BRANCH"); v != "" {
		c.Mirror.Branch = v
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_BACKEND"); v != "" {
		c.Mirror.Backend = v
	}
	if v := os.Getenv("REPOMIRROR_MIRROR_GIT_BINARY"); v != "" {
		c.Mirror.GitBinary = v
	}

	// Workspace settings
	if v := os.Getenv("REPOMIRROR_WORKSPACE_SCRATCH_DIR"); v != "" {
		c.Workspace.ScratchDir = v
	}

	// Credentials settings
	if v := os.Getenv("REPOMIRROR_CREDENTIALS_VALIDATE"); v != "" {
		c.Credentials.Validate = parseBool(v)
	}
	if v := os.Getenv("REPOMIRROR_CREDENTIALS_SOURCE_SERVICE"); v != "" {
		c.Credentials.SourceService = v
	}
	if v := os.Getenv("REPOMIRROR_CREDENTIALS_DEST_SERVICE"); v != "" {
		c.Credentials.DestService = v
	}

	// Output settings
	if v := os.Getenv("REPOMIRROR_OUTPUT_FAILURE_LOG"); v != "" {
		c.Output.FailureLog = v
	}
	if v := os.Getenv("REPOMIRROR_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("REPOMIRROR_OUTPUT_REPORT_FILE"); v != "" {
		c.Output.ReportFile = v
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// GetPushMode returns the configured push mode.
func (c *Config) GetPushMode() (model.PushMode, error) {
	return model.ParsePushMode(c.Mirror.PushMode)
}

// ScratchDir returns the expanded scratch directory.
func (c *Config) ScratchDir() string {
	if c.Workspace.ScratchDir == "" {
		return util.DefaultScratchRoot()
	}
	return util.ExpandPath(c.Workspace.ScratchDir)
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error

	mode, err := c.GetPushMode()
	if err != nil {
		errs = append(errs, err)
	} else if mode == model.PushBranch && strings.TrimSpace(c.Mirror.Branch) == "" {
		errs = append(errs, errors.New("push mode \"branch\" requires mirror.branch"))
	}
	if c.Mirror.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("mirror.concurrency must be at least 1, got %d", c.Mirror.Concurrency))
	}
	if c.Mirror.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("mirror.max_attempts must be at least 1, got %d", c.Mirror.MaxAttempts))
	}
	if c.Mirror.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("mirror.retry_delay must not be negative, got %s", c.Mirror.RetryDelay))
	}
	switch c.Mirror.Backend {
	case BackendExec, BackendGoGit:
	default:
		errs = append(errs, fmt.Errorf("unknown mirror.backend %q (valid: %s, %s)", c.Mirror.Backend, BackendExec, BackendGoGit))
	}
	if strings.TrimSpace(c.Mirror.RemoteName) == "" || c.Mirror.RemoteName == "origin" {
		errs = append(errs, fmt.Errorf("mirror.remote_name must be set and differ from \"origin\", got %q", c.Mirror.RemoteName))
	}
	errs = append(errs,
		checkService("credentials.source_service", c.Credentials.SourceService),
		checkService("credentials.dest_service", c.Credentials.DestService),
	)

	return errors.Join(errs...)
}

func checkService(field, svc string) error {
	switch svc {
	case ServiceGitLab, ServiceGitHub, ServiceNone:
		return nil
	default:
		return fmt.Errorf("unknown %s %q (valid: %s, %s, %s)", field, svc, ServiceGitLab, ServiceGitHub, ServiceNone)
	}
}

// Exists returns true if the default config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
