package transport

import (
	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/sshcrypto"
	"github.com/qt-creator/qtc-ssh/wire"
)

// ServiceConnection is the SSH service name requested before
// authentication and channel multiplexing may begin (RFC 4253 §10).
const ServiceConnection = "ssh-connection"
const serviceUserAuth = "ssh-userauth"

// AuthFailure reports the methods the server still accepts, returned when
// a userauth attempt fails.
type AuthFailure struct {
	MethodsContinue []string
	PartialSuccess  bool
}

func (e *AuthFailure) Error() string {
	return "ssh: authentication failed, methods remaining: " + joinComma(e.MethodsContinue)
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// RequestUserAuthService sends the ssh-userauth service request and waits
// for the accept, per spec §4.4 (UserAuthServiceRequested phase).
func (t *Transport) RequestUserAuthService() error {
	b := wire.NewBufferWithCapacity(32)
	b.AppendString(serviceUserAuth)
	if err := t.sendPacket(MsgServiceRequest, b.Bytes()); err != nil {
		return err
	}
	t.setPhase(PhaseUserAuthServiceRequested)

	payload, err := t.readPacket()
	if err != nil {
		return errors.Wrap(err, "ssh: read service accept")
	}
	if len(payload) == 0 || payload[0] != MsgServiceAccept {
		return errors.New("ssh: server refused ssh-userauth service request")
	}
	return nil
}

// AuthenticatePassword performs the password userauth method (spec §4.4).
func (t *Transport) AuthenticatePassword(user, password string) error {
	b := wire.NewBufferWithCapacity(64 + len(user) + len(password))
	b.AppendString(user)
	b.AppendString(ServiceConnection)
	b.AppendString("password")
	b.AppendBool(false)
	b.AppendString(password)
	return t.sendAuthRequestAndAwait(b.Bytes())
}

// AuthenticatePublicKey performs the publickey userauth method: the
// request is signed over session_id || request-with-empty-signature-
// field, per spec §4.2 and RFC 4252 §7.
func (t *Transport) AuthenticatePublicKey(user string, key sshcrypto.PrivateKey) error {
	t.setPhase(PhaseUserAuthRequested)

	blob := key.PublicKeyBlob()
	body := wire.NewBufferWithCapacity(64 + len(user) + len(blob))
	body.AppendString(user)
	body.AppendString(ServiceConnection)
	body.AppendString("publickey")
	body.AppendBool(true)
	body.AppendString(key.Algorithm())
	body.AppendBytes(blob)

	sig, err := sshcrypto.SignAuthRequest(key, t.sessionID, body.Bytes())
	if err != nil {
		return errors.Wrap(err, "ssh: sign publickey auth request")
	}
	body.AppendBytes(sig)

	return t.sendAuthRequestAndAwait(body.Bytes())
}

// AuthenticateKeyboardInteractive drives the keyboard-interactive method
// (RFC 4256), calling prompt once per INFO_REQUEST with its list of
// prompts and echo flags, until the server answers with success/failure.
func (t *Transport) AuthenticateKeyboardInteractive(user string, prompt func(instruction string, prompts []string, echo []bool) ([]string, error)) error {
	t.setPhase(PhaseUserAuthRequested)

	b := wire.NewBufferWithCapacity(64 + len(user))
	b.AppendString(user)
	b.AppendString(ServiceConnection)
	b.AppendString("keyboard-interactive")
	b.AppendString("")
	b.AppendString("")
	if err := t.sendPacket(MsgUserAuthRequest, b.Bytes()); err != nil {
		return err
	}

	for {
		payload, err := t.readPacket()
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case MsgUserAuthSuccess:
			t.setPhase(PhaseConnectionEstablished)
			return nil
		case MsgUserAuthFailure:
			return parseAuthFailure(payload[1:])
		case MsgUserAuthBanner:
			continue
		case MsgUserAuthInfoRequest:
			rb := wire.NewBuffer(payload[1:])
			instruction, _ := rb.ConsumeString()
			_, _ = rb.ConsumeString() // language tag
			count, err := rb.ConsumeUint32()
			if err != nil {
				return err
			}
			prompts := make([]string, count)
			echo := make([]bool, count)
			for i := range prompts {
				prompts[i], _ = rb.ConsumeString()
				echo[i], _ = rb.ConsumeBool()
			}
			answers, err := prompt(instruction, prompts, echo)
			if err != nil {
				return err
			}
			resp := wire.NewBufferWithCapacity(64)
			resp.AppendUint32(uint32(len(answers)))
			for _, a := range answers {
				resp.AppendString(a)
			}
			if err := t.sendPacket(MsgUserAuthInfoResponse, resp.Bytes()); err != nil {
				return err
			}
		default:
			return errors.Errorf("ssh: unexpected message %d during keyboard-interactive auth", payload[0])
		}
	}
}

func (t *Transport) sendAuthRequestAndAwait(body []byte) error {
	t.setPhase(PhaseUserAuthRequested)
	if err := t.sendPacket(MsgUserAuthRequest, body); err != nil {
		return err
	}
	for {
		payload, err := t.readPacket()
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case MsgUserAuthSuccess:
			t.setPhase(PhaseConnectionEstablished)
			return nil
		case MsgUserAuthFailure:
			return parseAuthFailure(payload[1:])
		case MsgUserAuthBanner:
			continue
		default:
			return errors.Errorf("ssh: unexpected message %d during authentication", payload[0])
		}
	}
}

func parseAuthFailure(body []byte) error {
	b := wire.NewBuffer(body)
	methods, _ := b.ConsumeNameList()
	partial, _ := b.ConsumeBool()
	return &AuthFailure{MethodsContinue: methods, PartialSuccess: partial}
}
