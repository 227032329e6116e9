package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if !cfg.Agent.InProcess() {
		t.Error("default agent should run in-process")
	}
}

func TestRelayConfig_Encoding(t *testing.T) {
	cfg := RelayConfig{KeyStore: KeyStoreConfig{Path: "k.db"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty encoding should default: %v", err)
	}
	if cfg.Encoding != "json" {
		t.Errorf("encoding = %q, want json", cfg.Encoding)
	}

	cfg.Encoding = "cbor"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("cbor should pass: %v", err)
	}

	cfg.Encoding = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown encoding should fail")
	}
}

func TestRelayConfig_MaxChunkBounds(t *testing.T) {
	cfg := RelayConfig{Encoding: "json", MaxChunk: -1, KeyStore: KeyStoreConfig{Path: "k.db"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative max_chunk should fail")
	}
}

func TestRelayConfig_KeyStoreRequired(t *testing.T) {
	cfg := RelayConfig{Encoding: "json"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing keystore path should fail")
	}
}

func TestFetchConfig_TimeoutRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Fetch.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero fetch timeout should fail")
	}
}
