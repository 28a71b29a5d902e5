package branding

import "testing"

func TestEmbeddedValues(t *testing.T) {
	if got := CLIName(); got != "unitcore" {
		t.Errorf("CLIName() = %q, want %q", got, "unitcore")
	}
	if got := HomeDir(); got != ".unitcore" {
		t.Errorf("HomeDir() = %q, want %q", got, ".unitcore")
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("status"); got != "UNITCORE_STATUS" {
		t.Errorf("EnvVar(status) = %q, want %q", got, "UNITCORE_STATUS")
	}
}
