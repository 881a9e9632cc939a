package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type sample struct {
	Name  string `yaml:"name" json:"name"`
	Port  int    `yaml:"port" json:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAMLExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "notes")
	p := write(t, "c.yaml", "name: ${SAMPLE_NAME}\nport: 8080\n")

	var got sample
	if err := Load(p, &got); err != nil {
		t.Fatal(err)
	}
	want := sample{Name: "notes", Port: 8080, valid: true}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(sample{})); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_JSONC(t *testing.T) {
	p := write(t, "c.jsonc", `{
  // graph name
  "name": "notes",
  "port": 9000,
}`)

	var got sample
	if err := Load(p, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "notes" || got.Port != 9000 {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := write(t, "c.yaml", "name: x\n")
	var got sample
	if err := Load(p, &got); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := write(t, "default.yaml", "name: default\nport: 1\n")

	var got sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "default" {
		t.Errorf("name = %q, want default", got.Name)
	}

	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &got); err == nil {
		t.Error("expected error without a default file")
	}
}
