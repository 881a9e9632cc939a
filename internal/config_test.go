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
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestGraphConfig_Provider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GraphConfig
		wantErr bool
	}{
		{"fs with path", GraphConfig{Provider: ProviderFS, Path: "./g"}, false},
		{"fs without path", GraphConfig{Provider: ProviderFS}, true},
		{"memory without path", GraphConfig{Provider: ProviderMemory}, false},
		{"unknown provider", GraphConfig{Provider: "ftp"}, true},
		{"negative workers", GraphConfig{Provider: ProviderMemory, Workers: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFullConfig_ProviderSections(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph.Provider = ProviderS3
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "s3:") {
		t.Fatalf("s3 provider without bucket should fail, got %v", err)
	}

	cfg.S3 = S3Config{Endpoint: "localhost:9000", Bucket: "notes", AccessKey: "a", SecretKey: "b"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete s3 section should pass: %v", err)
	}

	cfg = NewDefaultConfig()
	cfg.Graph.Provider = ProviderSQLite
	cfg.SQLite.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("sqlite provider without path should fail")
	}
}
