package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateKey(t *testing.T) {
	valid := []string{"k1", "some.funky.key", ".private", "with space", "ünïcode"}
	for _, k := range valid {
		if err := ValidateKey(k); err != nil {
			t.Errorf("ValidateKey(%q) = %v", k, err)
		}
	}

	invalid := []string{"", ".", "..", "a/b", "../etc", `a\b`, "nul\x00"}
	for _, k := range invalid {
		err := ValidateKey(k)
		if err == nil {
			t.Errorf("ValidateKey(%q) should fail", k)
			continue
		}
		if !IsValidation(err) {
			t.Errorf("ValidateKey(%q) returned %v, want validation error", k, err)
		}
	}
}

func TestValidateDBName(t *testing.T) {
	if err := ValidateDBName(":memory:testDB"); err != nil {
		t.Error(err)
	}
	for _, name := range []string{":memory:", ":memory:../x", "a/b", ""} {
		if ValidateDBName(name) == nil {
			t.Errorf("ValidateDBName(%q) should fail", name)
		}
	}
}

func TestNamePrefixes(t *testing.T) {
	if !IsEphemeral(":memory:x") || IsEphemeral("x") {
		t.Error("IsEphemeral")
	}
	if !IsPrivate(".x") || IsPrivate("x.") {
		t.Error("IsPrivate")
	}
	if !IsConfigDB(".CONFIG") || IsConfigDB("config") {
		t.Error("IsConfigDB")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != RetCSuccess {
		t.Error("nil should be success")
	}
	if CodeOf(errors.New("x")) != RetCInternalError {
		t.Error("plain errors are internal")
	}
	wrapped := fmt.Errorf("context: %w", NewError(RetCAuthorization, "denied"))
	if !IsAuthorization(wrapped) {
		t.Error("wrapped store errors must keep their code")
	}
	if got := Errorf(RetCValidation, "Bad index %d", 7).Error(); got != "ValidationError: Bad index 7" {
		t.Errorf("unexpected message %q", got)
	}
}
