package cli

import "testing"

func TestRunVersionReturnsTrue(t *testing.T) {
	if !Run([]string{"version"}) {
		t.Fatal("expected version subcommand to be handled")
	}
}

func TestRunUnknownReturnsFalse(t *testing.T) {
	if Run([]string{"bogus"}) {
		t.Fatal("expected unknown subcommand to be unhandled")
	}
}

func TestRunEmptyReturnsFalse(t *testing.T) {
	if Run(nil) {
		t.Fatal("expected no args to be unhandled")
	}
}
