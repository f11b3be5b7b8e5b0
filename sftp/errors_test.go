package sftp

import (
	stderrors "errors"
	"testing"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

func TestStatusToErrorOK(t *testing.T) {
	if err := statusToError(&sshfx.StatusPacket{StatusCode: sshfx.StatusOK}); err != nil {
		t.Errorf("StatusOK should yield a nil error, got %v", err)
	}
}

func TestStatusToErrorEOF(t *testing.T) {
	err := statusToError(&sshfx.StatusPacket{StatusCode: sshfx.StatusEOF})
	if err == nil {
		t.Fatal("expected a non-nil error for StatusEOF")
	}
	if !stderrors.Is(err, ErrSSHFxEOF) {
		t.Errorf("expected err to match ErrSSHFxEOF, got %v", err)
	}
}

func TestStatusToErrorFailureMatchesSentinel(t *testing.T) {
	err := statusToError(&sshfx.StatusPacket{
		StatusCode:   sshfx.StatusFailure,
		ErrorMessage: "boom",
	})
	if !stderrors.Is(err, ErrSSHFxFailure) {
		t.Errorf("expected err to match ErrSSHFxFailure, got %v", err)
	}
	if stderrors.Is(err, ErrSSHFxNoSuchFile) {
		t.Error("did not expect err to match ErrSSHFxNoSuchFile")
	}

	var statusErr *StatusError
	if !stderrors.As(err, &statusErr) {
		t.Fatal("expected err to be a *StatusError")
	}
	if statusErr.FxCode() != sshfx.StatusFailure {
		t.Errorf("FxCode() = %v, want %v", statusErr.FxCode(), sshfx.StatusFailure)
	}
	if statusErr.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestStatusErrorIsAgainstAnotherStatusError(t *testing.T) {
	a := &StatusError{Code: sshfx.StatusNoSuchFile}
	b := &StatusError{Code: sshfx.StatusNoSuchFile}
	c := &StatusError{Code: sshfx.StatusPermissionDenied}

	if !stderrors.Is(a, b) {
		t.Error("expected two StatusErrors with the same code to match")
	}
	if stderrors.Is(a, c) {
		t.Error("did not expect StatusErrors with different codes to match")
	}
}

func TestFxerrIsAgainstStatusError(t *testing.T) {
	statusErr := &StatusError{Code: sshfx.StatusPermissionDenied}
	if !stderrors.Is(statusErr, ErrSSHFxPermissionDenied) {
		t.Error("expected StatusError to match the corresponding fxerr sentinel")
	}
}
