package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("audit.store_path", "must not be empty")
	want := "config error in audit.store_path: must not be empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("audit store unreachable")
	err := NewCommandError("audit verify", inner)

	if err.Error() != "command audit verify failed: audit store unreachable" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("CommandError does not unwrap to its cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "blocked", err: &ExitError{Code: ExitBlocked}, want: ExitBlocked},
		{name: "wrapped exit", err: fmt.Errorf("decide: %w", &ExitError{Code: ExitBlocked}), want: ExitBlocked},
		{name: "command error", err: NewCommandError("decide", errors.New("x")), want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitError_Message(t *testing.T) {
	if got := (&ExitError{Code: 2}).Error(); got != "exit status 2" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&ExitError{Code: 2, Message: "change blocked"}).Error(); got != "change blocked" {
		t.Errorf("Error() = %q", got)
	}
}
