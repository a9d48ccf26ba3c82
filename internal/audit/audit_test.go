package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "azure"); got != "azure" {
		t.Errorf("expected 'azure', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.ciai/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.ciai/config.yaml" {
			t.Errorf("expected '~/.ciai/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("CIAI_API_KEY", "super-secret-token")
	t.Setenv("QDRANT_API_KEY", "")
	t.Setenv("VECTOR_BACKEND", "chromem")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(log, "index", "")

	out := buf.String()
	if strings.Contains(out, "super-secret-token") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	for _, want := range []string{`"CIAI_API_KEY":"set"`, `"QDRANT_API_KEY":"unset"`, `"VECTOR_BACKEND":"chromem"`, `"command":"index"`, `"config_file":"none"`} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %s: %s", want, out)
		}
	}
}

func TestAuditKeys_SecretsFlagged(t *testing.T) {
	t.Parallel()
	for _, e := range auditKeys {
		if secretEnvKeys[e.key] != e.secret {
			t.Errorf("%s: audit secret=%v, secret list=%v", e.key, e.secret, secretEnvKeys[e.key])
		}
	}
}
