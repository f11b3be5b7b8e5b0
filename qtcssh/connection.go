package qtcssh

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/channel"
	"github.com/qt-creator/qtc-ssh/sftp"
	"github.com/qt-creator/qtc-ssh/sshcrypto"
	"github.com/qt-creator/qtc-ssh/sshprocess"
	"github.com/qt-creator/qtc-ssh/transport"
	"github.com/qt-creator/qtc-ssh/tunnel"
)

// Connection is one established, authenticated, multiplexing-ready SSH-2
// connection (spec §3 Session state, §6 public surface): Connect has
// already run version exchange, key exchange, userauth, and started the
// channel Manager by the time Dial returns successfully.
type Connection struct {
	cfg Config
	log *logrus.Entry

	conn      net.Conn
	transport *transport.Transport
	mgr       *channel.Manager
}

// Dial opens a TCP connection to cfg.Addr(), runs the SSH-2 handshake and
// the configured authentication method, and starts channel multiplexing.
// The returned Connection is ready for Exec, Shell, NewSFTPClient and
// OpenTunnel.
func Dial(cfg Config) (*Connection, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("host", cfg.Addr())

	d := net.Dialer{Timeout: cfg.DialTimeout}
	raw, err := d.Dial("tcp", cfg.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "qtcssh: dial %s", cfg.Addr())
	}

	c := &Connection{cfg: cfg, log: log, conn: raw}

	t := transport.New(raw, transport.Config{
		Host:              cfg.Host,
		Capabilities:      cfg.Capabilities,
		HostKeyDB:         cfg.HostKeyDB,
		HostKeyCheckMode:  cfg.HostKeyCheckMode,
		KeepAliveInterval: cfg.KeepAliveInterval,
		ReplyTimeout:      cfg.ReplyTimeout,
		Logger:            log,
	})
	c.transport = t

	if err := t.Connect(); err != nil {
		_ = raw.Close()
		return nil, errors.Wrap(err, "qtcssh: connect")
	}
	if err := t.RequestUserAuthService(); err != nil {
		_ = raw.Close()
		return nil, errors.Wrap(err, "qtcssh: request ssh-userauth service")
	}
	if err := c.authenticate(); err != nil {
		_ = raw.Close()
		return nil, errors.Wrap(err, "qtcssh: authenticate")
	}

	t.BeginMultiplexing()
	c.mgr = channel.NewManager(t, log, cfg.ReplyTimeout)

	return c, nil
}

func (c *Connection) authenticate() error {
	switch c.cfg.AuthMethod {
	case AuthMethodPassword:
		return c.transport.AuthenticatePassword(c.cfg.User, c.cfg.Password)

	case AuthMethodPublicKey:
		key, err := c.resolvePrivateKey()
		if err != nil {
			return err
		}
		return c.transport.AuthenticatePublicKey(c.cfg.User, key)

	case AuthMethodKeyboardInteractive:
		if c.cfg.KeyboardInteractive == nil {
			return errors.New("qtcssh: AuthMethodKeyboardInteractive requires Config.KeyboardInteractive")
		}
		return c.transport.AuthenticateKeyboardInteractive(c.cfg.User, c.cfg.KeyboardInteractive)

	default:
		return errors.Errorf("qtcssh: unknown AuthMethod %d", c.cfg.AuthMethod)
	}
}

func (c *Connection) resolvePrivateKey() (sshcrypto.PrivateKey, error) {
	if c.cfg.PrivateKey != nil {
		return c.cfg.PrivateKey, nil
	}
	if c.cfg.PrivateKeyPath == "" {
		return nil, errors.New("qtcssh: AuthMethodPublicKey requires PrivateKey or PrivateKeyPath")
	}
	pemBytes, err := os.ReadFile(c.cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "qtcssh: read private key %s", c.cfg.PrivateKeyPath)
	}
	return sshcrypto.LoadPrivateKeyFile(pemBytes, c.cfg.PasswordRetriever)
}

// Exec starts command on a new session channel.
func (c *Connection) Exec(command string) (*sshprocess.Process, error) {
	p, err := sshprocess.Open(c.mgr, channel.VariantSessionProcess)
	if err != nil {
		return nil, err
	}
	if err := p.Exec(command); err != nil {
		return nil, err
	}
	return p, nil
}

// Shell starts the user's login shell on a new session channel,
// optionally first requesting a pty (term == "" skips pty-req) and, if
// Config.X11DisplayName is set, X11 forwarding (spec §6; §1 Non-goals:
// the core passes the display string along and does nothing else with
// it — no cookie generation, no local X11 proxy).
func (c *Connection) Shell(term string, cols, rows uint32) (*sshprocess.Process, error) {
	p, err := sshprocess.Open(c.mgr, channel.VariantSessionShell)
	if err != nil {
		return nil, err
	}
	if term != "" {
		if err := p.RequestPTY(term, cols, rows, 0, 0, nil); err != nil {
			return nil, err
		}
	}
	if c.cfg.X11DisplayName != "" {
		if err := p.RequestX11Forwarding(false, "MIT-MAGIC-COOKIE-1", "", x11ScreenNumber(c.cfg.X11DisplayName)); err != nil {
			return nil, err
		}
	}
	if err := p.Shell(); err != nil {
		return nil, err
	}
	return p, nil
}

// x11ScreenNumber extracts the screen number from a "host:display.screen"
// DISPLAY string, defaulting to 0 when absent or unparseable.
func x11ScreenNumber(display string) uint32 {
	dot := strings.LastIndexByte(display, '.')
	if dot < 0 {
		return 0
	}
	n, err := strconv.ParseUint(display[dot+1:], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// NewSFTPClient opens the "sftp" subsystem channel and completes the
// SFTP v3 handshake.
func (c *Connection) NewSFTPClient() (*sftp.Client, error) {
	return sftp.NewClient(c.mgr)
}

// OpenTunnel opens a direct-tcpip channel forwarding to destHost:destPort,
// reporting originatorHost:originatorPort as the connecting peer.
func (c *Connection) OpenTunnel(destHost string, destPort uint32, originatorHost string, originatorPort uint32) (*tunnel.Tunnel, error) {
	return tunnel.Open(c.mgr, destHost, destPort, originatorHost, originatorPort)
}

// Manager returns the underlying channel Manager, for callers that need
// direct access to open a channel type this façade doesn't wrap.
func (c *Connection) Manager() *channel.Manager { return c.mgr }

// Done returns a channel closed once the transport has torn down, for any
// reason (spec §5 Cancellation, §7 Error handling).
func (c *Connection) Done() <-chan struct{} { return c.transport.Done() }

// OnDisconnect registers a callback invoked once when the connection
// tears down.
func (c *Connection) OnDisconnect(fn func(*transport.DisconnectError)) {
	c.transport.OnDisconnect(fn)
}

// Close cancels every open channel and disconnects the transport.
func (c *Connection) Close() error {
	if c.mgr != nil {
		c.mgr.CloseAll()
	}
	return c.transport.Disconnect(transport.DisconnectByApplication, "qtcssh: connection closed")
}
