package sshcrypto

// HostKeyCheckMode is the embedder-configured threshold for which
// HostKeyDatabase lookup outcomes abort the key exchange (spec §6).
type HostKeyCheckMode int

const (
	// HostKeyCheckNone skips verification entirely.
	HostKeyCheckNone HostKeyCheckMode = iota
	// HostKeyCheckAllowNoMatch accepts Match and NoMatch, rejects Mismatch.
	HostKeyCheckAllowNoMatch
	// HostKeyCheckAllowMismatch accepts any outcome; the outcome is not
	// recorded and the database is left unchanged.
	HostKeyCheckAllowMismatch
	// HostKeyCheckStrict accepts only Match.
	HostKeyCheckStrict
)

// HostKeyOutcome is the result of looking a host up in the database.
type HostKeyOutcome int

const (
	// HostKeyMatch means the database holds exactly this key for this host.
	HostKeyMatch HostKeyOutcome = iota
	// HostKeyMismatch means the database holds a different key for this host.
	HostKeyMismatch
	// HostKeyNoMatch means the database has no entry for this host.
	HostKeyNoMatch
)

// HostKeyDatabase is the collaborator interface consumed by key exchange
// (spec §3, §6). Implementations are supplied by the embedder and are not
// persisted by this module.
type HostKeyDatabase interface {
	Match(host string, keyBlob []byte) (HostKeyOutcome, error)
	Insert(host string, keyBlob []byte) error
}

// Accept reports whether outcome passes the threshold for mode.
func Accept(mode HostKeyCheckMode, outcome HostKeyOutcome) bool {
	switch mode {
	case HostKeyCheckNone:
		return true
	case HostKeyCheckAllowNoMatch:
		return outcome != HostKeyMismatch
	case HostKeyCheckAllowMismatch:
		return true
	case HostKeyCheckStrict:
		return outcome == HostKeyMatch
	default:
		return false
	}
}

// MemoryHostKeyDatabase is a minimal in-process HostKeyDatabase, useful
// for tests and for embedders that don't need persistence across runs.
type MemoryHostKeyDatabase struct {
	keys map[string][]byte
}

// NewMemoryHostKeyDatabase returns an empty database.
func NewMemoryHostKeyDatabase() *MemoryHostKeyDatabase {
	return &MemoryHostKeyDatabase{keys: make(map[string][]byte)}
}

// Match implements HostKeyDatabase.
func (d *MemoryHostKeyDatabase) Match(host string, keyBlob []byte) (HostKeyOutcome, error) {
	stored, ok := d.keys[host]
	if !ok {
		return HostKeyNoMatch, nil
	}
	if string(stored) == string(keyBlob) {
		return HostKeyMatch, nil
	}
	return HostKeyMismatch, nil
}

// Insert implements HostKeyDatabase.
func (d *MemoryHostKeyDatabase) Insert(host string, keyBlob []byte) error {
	d.keys[host] = append([]byte(nil), keyBlob...)
	return nil
}
