package main

import (
	"errors"
	"testing"
)

func TestExitCodeMapsNilToZero(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("exitCode(nil) = %d, want 0", got)
	}
}

func TestExitCodeMapsExitErrorToItsCode(t *testing.T) {
	err := &exitError{code: 2, err: errors.New("boot failed")}
	if got := exitCode(err); got != 2 {
		t.Errorf("exitCode(exitError{2}) = %d, want 2", got)
	}
}

func TestExitCodeDefaultsUnrecognizedErrorToOne(t *testing.T) {
	if got := exitCode(errors.New("plain error")); got != 1 {
		t.Errorf("exitCode(plain error) = %d, want 1", got)
	}
}
