// Package qtcssh is the connection façade: one Config + Connect call that
// drives the transport, channel multiplexer and subsystem clients
// underneath, mirroring the shape of the original SshConnectionParameters
// / SshConnection pair (spec §3, §6).
package qtcssh

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/kex"
	"github.com/qt-creator/qtc-ssh/sshcrypto"
)

// AuthMethod selects which userauth method Connect drives (spec §3
// Connection parameters "authentication method").
type AuthMethod int

const (
	// AuthMethodPassword authenticates with Config.Password.
	AuthMethodPassword AuthMethod = iota
	// AuthMethodPublicKey authenticates with Config.PrivateKey (loaded
	// via Config.PrivateKeyFile/Config.PasswordRetriever if unset).
	AuthMethodPublicKey
	// AuthMethodKeyboardInteractive drives RFC 4256 prompts through
	// Config.KeyboardInteractive.
	AuthMethodKeyboardInteractive
)

// Config is the immutable set of parameters that identify one logical SSH
// connection (spec §3 Connection parameters, §6 "Encoded configuration
// options"). Two Configs that Equal each other may share a pooled
// connection in sshpool.
type Config struct {
	Host string
	Port uint16
	User string

	AuthMethod AuthMethod

	// AuthMethodPassword.
	Password string

	// AuthMethodPublicKey. Either PrivateKey is pre-loaded, or
	// PrivateKeyPath + PasswordRetriever load it lazily on Connect.
	PrivateKey        sshcrypto.PrivateKey
	PrivateKeyPath    string
	PasswordRetriever sshcrypto.PasswordRetriever

	// AuthMethodKeyboardInteractive.
	KeyboardInteractive func(instruction string, prompts []string, echo []bool) ([]string, error)

	HostKeyDB        sshcrypto.HostKeyDatabase
	HostKeyCheckMode sshcrypto.HostKeyCheckMode

	Capabilities kex.Capabilities

	DialTimeout       time.Duration
	ReplyTimeout      time.Duration
	KeepAliveInterval time.Duration

	// X11DisplayName is an opaque DISPLAY string (e.g. "localhost:10.0")
	// forwarded in X11 forwarding requests (spec §6); empty means "don't
	// request X11 forwarding". The core only threads it through to the
	// x11-req sent by Connection.Shell — it renders nothing itself (§1
	// Non-goals: "no X11 forwarding logic beyond passing a display
	// string").
	X11DisplayName string

	// ConnectionSharing and SharingTimeout are sshpool's per-connection
	// policy knobs (spec §4.10, §6): whether a new Acquire for this Config
	// may be satisfied from the pool's cache at all, and how long an
	// unleased connection may sit idle before the sweeper closes it.
	// They live on Config (not on sshpool.New's constructor) because they
	// are properties of one parameter tuple, not of the pool as a whole —
	// two Configs that otherwise share identity may still disagree on
	// whether they want to be shared.
	ConnectionSharing bool
	SharingTimeout    time.Duration

	Logger *logrus.Entry
}

// Option mutates a Config before Dial, matching the teacher's
// functional-option style (sftp.ClientOption).
type Option func(*Config)

// DefaultConfig returns a Config with the common defaults (10s dial/reply
// timeout, 30s keep-alive, password auth, an empty in-memory host key
// database checked in HostKeyCheckAllowNoMatch mode) for host:port as user,
// then applies opts. The transport only looks keys up in the database and
// never inserts into it, so every host stays NoMatch and is accepted; no
// host key is remembered between connects.
func DefaultConfig(host string, port uint16, user string, opts ...Option) Config {
	cfg := Config{
		Host:              host,
		Port:              port,
		User:              user,
		AuthMethod:        AuthMethodPassword,
		HostKeyDB:         sshcrypto.NewMemoryHostKeyDatabase(),
		HostKeyCheckMode:  sshcrypto.HostKeyCheckAllowNoMatch,
		Capabilities:      kex.Default(),
		DialTimeout:       10 * time.Second,
		ReplyTimeout:      10 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		ConnectionSharing: true,
		SharingTimeout:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithPassword selects password auth.
func WithPassword(password string) Option {
	return func(c *Config) {
		c.AuthMethod = AuthMethodPassword
		c.Password = password
	}
}

// WithPrivateKey selects publickey auth with an already-loaded key.
func WithPrivateKey(key sshcrypto.PrivateKey) Option {
	return func(c *Config) {
		c.AuthMethod = AuthMethodPublicKey
		c.PrivateKey = key
	}
}

// WithPrivateKeyFile selects publickey auth, loading and decrypting the
// key from path on Connect using retriever for any passphrase prompt.
func WithPrivateKeyFile(path string, retriever sshcrypto.PasswordRetriever) Option {
	return func(c *Config) {
		c.AuthMethod = AuthMethodPublicKey
		c.PrivateKeyPath = path
		c.PasswordRetriever = retriever
	}
}

// WithKeyboardInteractive selects keyboard-interactive auth.
func WithKeyboardInteractive(prompt func(instruction string, prompts []string, echo []bool) ([]string, error)) Option {
	return func(c *Config) {
		c.AuthMethod = AuthMethodKeyboardInteractive
		c.KeyboardInteractive = prompt
	}
}

// WithHostKeyDatabase overrides the default empty in-memory database, e.g.
// with a known_hosts-backed implementation.
func WithHostKeyDatabase(db sshcrypto.HostKeyDatabase, mode sshcrypto.HostKeyCheckMode) Option {
	return func(c *Config) {
		c.HostKeyDB = db
		c.HostKeyCheckMode = mode
	}
}

// WithKeepAlive sets the SSH_MSG_IGNORE keep-alive interval; zero disables
// it.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAliveInterval = d }
}

// WithTimeouts overrides the dial and per-reply timeouts.
func WithTimeouts(dial, reply time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = dial
		c.ReplyTimeout = reply
	}
}

// WithLogger scopes log output to the given entry.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Config) { c.Logger = log }
}

// WithX11Display sets the DISPLAY string Connection.Shell forwards via
// x11-req; empty disables X11 forwarding.
func WithX11Display(display string) Option {
	return func(c *Config) { c.X11DisplayName = display }
}

// WithConnectionSharing overrides whether this Config's connection may be
// pooled, and how long it may sit idle in sshpool before being closed
// (sharing=false is equivalent to always calling
// sshpool.Pool.ForceNewConnection before every Acquire for this Config).
func WithConnectionSharing(sharing bool, timeout time.Duration) Option {
	return func(c *Config) {
		c.ConnectionSharing = sharing
		c.SharingTimeout = timeout
	}
}

// Addr returns "host:port".
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Key returns a value comparable with == that identifies every parameter
// sshpool should consider when deciding whether two Configs may share a
// connection. Closures (PasswordRetriever, KeyboardInteractive) and the
// Logger are deliberately excluded: they are collaborators, not identity,
// and two Configs built with different closures but otherwise the same
// host/user/secret should still share a connection. A pre-loaded
// PrivateKey takes part only through its public key blob.
func (c Config) Key() ConfigKey {
	var keyFingerprint string
	if c.PrivateKey != nil {
		keyFingerprint = string(c.PrivateKey.PublicKeyBlob())
	}
	return ConfigKey{
		Host:           c.Host,
		Port:           c.Port,
		User:           c.User,
		AuthMethod:     c.AuthMethod,
		Password:       c.Password,
		PrivateKeyPath: c.PrivateKeyPath,
		KeyFingerprint: keyFingerprint,
	}
}

// ConfigKey is the comparable identity of a Config, suitable as a map or
// LRU cache key (sshpool §4.10).
type ConfigKey struct {
	Host           string
	Port           uint16
	User           string
	AuthMethod     AuthMethod
	Password       string
	PrivateKeyPath string
	KeyFingerprint string
}

// Equal reports whether a and b identify connections that may be shared.
func (c Config) Equal(other Config) bool {
	return c.Key() == other.Key()
}
