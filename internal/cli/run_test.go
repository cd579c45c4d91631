package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/repomirror/internal/credentials"
	"github.com/klauern/repomirror/internal/export"
)

func TestRunCommand(t *testing.T) {
	tests := map[string]struct {
		pairs          string
		args           []string
		wantErr        []error
		wantFailureLog string
		wantClones     int
		wantStdout     []string
		wantStderr     []string
	}{
		"all pairs succeed": {
			pairs:      "https://a/one.git,https://b/one.git\nhttps://a/two.git,https://b/two.git\n",
			wantClones: 2,
			wantStdout: []string{"Summary: 2 total, 2 succeeded, 0 failed"},
		},
		"push always fails": {
			pairs:          "https://a/fail.git,https://b/fail.git\n",
			wantErr:        []error{ErrPairsFailed},
			wantFailureLog: "https://a/fail.git,https://b/fail.git\n",
			wantClones:     3,
			wantStdout:     []string{"✗ https://a/fail.git → https://b/fail.git", "1 failed"},
		},
		"malformed line reported and valid lines still run": {
			pairs:      "https://a/one.git,https://b/one.git\nonly-one-field\nhttps://a/two.git,https://b/two.git\n",
			wantErr:    []error{ErrInvalidPairs},
			wantClones: 2,
			wantStderr: []string{"line 2: expected 2 comma-separated fields, got 1"},
		},
		"failures and malformed lines both reported": {
			pairs:          "https://a/fail.git,https://b/fail.git\n,\n",
			args:           []string{"--max-attempts", "1"},
			wantErr:        []error{ErrPairsFailed, ErrInvalidPairs},
			wantFailureLog: "https://a/fail.git,https://b/fail.git\n",
			wantClones:     1,
		},
		"dry run touches nothing": {
			pairs:      "https://a/one.git,https://b/one.git\n",
			args:       []string{"--dry-run"},
			wantClones: 0,
			wantStdout: []string{"Dry run", "https://a/one.git → https://b/one.git", "1 pair(s) would be mirrored"},
		},
		"empty pairs file": {
			pairs:      "# nothing yet\n",
			wantClones: 0,
			wantStdout: []string{"No pairs to mirror"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, tt.pairs)
			backend := &recordingBackend{}
			useBackend(t, backend)

			args := append([]string{"--config", env.configPath, "run"}, tt.args...)
			stdout, stderr, err := runCLI(t, args...)

			if len(tt.wantErr) == 0 && err != nil {
				t.Fatalf("Run() error = %v\nstderr: %s", err, stderr)
			}
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("Run() error = %v, want %v", err, want)
				}
			}

			if got := backend.cloneCount(); got != tt.wantClones {
				t.Errorf("clones = %d, want %d", got, tt.wantClones)
			}

			data, statErr := os.ReadFile(env.failureLog)
			if tt.wantFailureLog == "" {
				if statErr == nil {
					t.Errorf("failure log should not exist, got %q", data)
				}
			} else if string(data) != tt.wantFailureLog {
				t.Errorf("failure log = %q, want %q", data, tt.wantFailureLog)
			}

			for _, want := range tt.wantStdout {
				if !strings.Contains(stdout, want) {
					t.Errorf("stdout missing %q:\n%s", want, stdout)
				}
			}
			for _, want := range tt.wantStderr {
				if !strings.Contains(stderr, want) {
					t.Errorf("stderr missing %q:\n%s", want, stderr)
				}
			}

			entries, _ := os.ReadDir(env.scratch)
			if len(entries) != 0 {
				t.Errorf("scratch dir should be empty after run, has %d entries", len(entries))
			}
		})
	}
}

func TestRunCommand_InvalidConfiguration(t *testing.T) {
	tests := map[string][]string{
		"unknown push mode":      {"--push-mode", "sideways"},
		"branch mode w/o branch": {"--push-mode", "branch"},
		"zero concurrency":       {"--concurrency", "0"},
		"unknown backend":        {"--backend", "svn"},
		"negative retry delay":   {"--retry-delay=-1s"},
		"missing pairs file":     {"--pairs", "/does/not/exist.txt"},
		"unknown report format":  {"--report-file", "out.txt", "--report-format", "xml"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, "https://a/x.git,https://b/x.git\n")
			backend := &recordingBackend{}
			useBackend(t, backend)

			_, _, err := runCLI(t, append([]string{"--config", env.configPath, "run"}, args...)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if backend.cloneCount() != 0 {
				t.Error("no pair should run with an invalid configuration")
			}
		})
	}
}

func TestRunCommand_ReportFile(t *testing.T) {
	env := newTestEnv(t, "https://a/one.git,https://b/one.git\nhttps://a/fail.git,https://b/fail.git\n")
	useBackend(t, &recordingBackend{})
	reportPath := filepath.Join(env.dir, "reports", "run.json")

	stdout, _, err := runCLI(t, "--config", env.configPath, "run", "--max-attempts", "1", "--report-file", reportPath)
	if !errors.Is(err, ErrPairsFailed) {
		t.Fatalf("Run() error = %v, want ErrPairsFailed", err)
	}
	if !strings.Contains(stdout, "Report written to "+reportPath) {
		t.Errorf("stdout missing report path:\n%s", stdout)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var doc export.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if doc.Total != 2 || doc.Succeeded != 1 || doc.Failed != 1 {
		t.Errorf("report counts = %d/%d/%d, want 2/1/1", doc.Total, doc.Succeeded, doc.Failed)
	}
	if doc.FailureLog != env.failureLog {
		t.Errorf("report failure_log = %q, want %q", doc.FailureLog, env.failureLog)
	}
}

func TestRunCommand_CredentialValidationFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	env := newTestEnv(t, "https://a/x.git,https://b/x.git\n")
	// Re-enable validation against the fake API for both sides.
	extra := "credentials:\n" +
		"  validate: true\n" +
		"  source_service: gitlab\n" +
		"  source_api_url: " + srv.URL + "\n" +
		"  dest_service: github\n" +
		"  dest_api_url: " + srv.URL + "\n"
	cfg, _ := os.ReadFile(env.configPath)
	cfgText := strings.Replace(string(cfg), "credentials:\n  validate: false\n", extra, 1)
	if err := os.WriteFile(env.configPath, []byte(cfgText), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REPOMIRROR_SOURCE_TOKEN", "bad-source-token")
	t.Setenv("REPOMIRROR_DEST_TOKEN", "bad-dest-token")

	backend := &recordingBackend{}
	useBackend(t, backend)

	stdout, stderr, err := runCLI(t, "--config", env.configPath, "run")
	if !errors.Is(err, credentials.ErrCredentialInvalid) {
		t.Fatalf("Run() error = %v, want ErrCredentialInvalid", err)
	}
	if backend.cloneCount() != 0 {
		t.Error("no pair should run after credential validation fails")
	}
	for _, out := range []string{stdout, stderr, err.Error()} {
		if strings.Contains(out, "bad-source-token") || strings.Contains(out, "bad-dest-token") {
			t.Errorf("token leaked in output: %q", out)
		}
	}

	// --skip-validation bypasses the check.
	_, _, err = runCLI(t, "--config", env.configPath, "run", "--skip-validation")
	if err != nil {
		t.Fatalf("Run(--skip-validation) error = %v", err)
	}
	if backend.cloneCount() != 1 {
		t.Errorf("clones = %d, want 1", backend.cloneCount())
	}
}

func TestRunCommand_TokensEmbeddedInURLs(t *testing.T) {
	env := newTestEnv(t, "https://a/x.git,https://b/x.git\n")
	t.Setenv("REPOMIRROR_SOURCE_TOKEN", "src-secret")

	backend := &recordingBackend{}
	useBackend(t, backend)

	stdout, _, err := runCLI(t, "--config", env.configPath, "run")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(backend.clones) != 1 || backend.clones[0] != "https://oauth2:src-secret@a/x.git" {
		t.Errorf("clone urls = %v", backend.clones)
	}
	if strings.Contains(stdout, "src-secret") {
		t.Error("token leaked to stdout")
	}
}

func TestFallbackTokenVars(t *testing.T) {
	tests := map[string]struct {
		service string
		want    []string
	}{
		"gitlab": {service: "gitlab", want: []string{"GITLAB_TOKEN"}},
		"github": {service: "github", want: []string{"GH_TOKEN", "GITHUB_TOKEN"}},
		"none":   {service: "none", want: nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := fallbackTokenVars(tt.service)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("fallbackTokenVars(%q) = %v, want %v", tt.service, got, tt.want)
			}
		})
	}
}
