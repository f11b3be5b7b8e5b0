package sftp

import (
	"fmt"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// StatusError is returned whenever an SFTP operation completes with a
// SSH_FXP_STATUS reply other than SSH_FX_OK, SSH_FX_EOF included (it
// matches ErrSSHFxEOF).
type StatusError struct {
	Code      sshfx.Status
	msg, lang string
}

func (e *StatusError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("sftp: %q (%s)", e.msg, e.Code)
	}
	return fmt.Sprintf("sftp: %s", e.Code)
}

// FxCode returns the underlying SSH_FX_* status code.
func (e *StatusError) FxCode() sshfx.Status { return e.Code }

// Is reports whether target represents the same SSH_FX_* status as e.
func (e *StatusError) Is(target error) bool {
	switch target := target.(type) {
	case *StatusError:
		return e.Code == target.Code
	case fxerr:
		return e.Code == sshfx.Status(target)
	case sshfx.Status:
		return e.Code == target
	}
	return false
}

func statusToError(pkt *sshfx.StatusPacket) error {
	switch pkt.StatusCode {
	case sshfx.StatusOK:
		return nil
	case sshfx.StatusEOF:
		return &StatusError{Code: pkt.StatusCode, msg: pkt.ErrorMessage, lang: pkt.LanguageTag}
	}
	return &StatusError{Code: pkt.StatusCode, msg: pkt.ErrorMessage, lang: pkt.LanguageTag}
}

// fxerr is the legacy, error-code-only view of a status: useful for callers
// that want to compare against a SSH_FX_* code with errors.Is without
// constructing a full StatusError.
type fxerr uint32

// Sentinel error codes matching the SSH_FXP_STATUS codes this client can
// receive. Gives direct control of comparisons against a specific SSH_FX_*
// code, rather than pattern matching on the error string.
const (
	ErrSSHFxOk               = fxerr(sshfx.StatusOK)
	ErrSSHFxEOF              = fxerr(sshfx.StatusEOF)
	ErrSSHFxNoSuchFile       = fxerr(sshfx.StatusNoSuchFile)
	ErrSSHFxPermissionDenied = fxerr(sshfx.StatusPermissionDenied)
	ErrSSHFxFailure          = fxerr(sshfx.StatusFailure)
	ErrSSHFxBadMessage       = fxerr(sshfx.StatusBadMessage)
	ErrSSHFxNoConnection     = fxerr(sshfx.StatusNoConnection)
	ErrSSHFxConnectionLost   = fxerr(sshfx.StatusConnectionLost)
	ErrSSHFxOpUnsupported    = fxerr(sshfx.StatusOPUnsupported)
)

func (e fxerr) Error() string {
	return sshfx.Status(e).String()
}

// Is returns true if target represents the same SSH_FX_* code as this fxerr.
func (e fxerr) Is(target error) bool {
	switch target := target.(type) {
	case fxerr:
		return e == target
	case *StatusError:
		return sshfx.Status(e) == target.Code
	case sshfx.Status:
		return sshfx.Status(e) == target
	}
	return false
}
