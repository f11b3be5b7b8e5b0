// Package sshpool shares qtcssh.Connections across callers that ask for
// the same parameters (spec §4.10): connections currently leased to a
// caller live in an unbounded "active" set keyed by parameter tuple;
// connections nobody is using live in a bounded, recency-ordered "idle"
// cache that evicts its least-recently-released entry once full, and an
// idle sweeper additionally closes anything that's sat unleased longer
// than idleTimeout.
package sshpool

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/qtcssh"
)

// Config is an alias of qtcssh.Config, named locally so callers can Acquire
// without importing qtcssh just for the parameter type.
type Config = qtcssh.Config

// entry is one shared connection slot. dialOnce guarantees exactly one
// goroutine dials for a given key even if several callers Acquire the
// same parameters concurrently before the first dial finishes.
type entry struct {
	cfg qtcssh.Config

	dialOnce sync.Once
	conn     *qtcssh.Connection
	dialErr  error

	mu         sync.Mutex
	refcount   int
	idleSince  time.Time
	deprecated bool
}

func (e *entry) dial(newBackOff func() backoff.BackOff) error {
	e.dialOnce.Do(func() {
		e.dialErr = backoff.Retry(func() error {
			conn, err := qtcssh.Dial(e.cfg)
			if err != nil {
				return err
			}
			e.conn = conn
			return nil
		}, newBackOff())
	})
	return e.dialErr
}

// Pool shares Connections across Acquire calls with an equal Config (per
// qtcssh.Config.Equal).
type Pool struct {
	log *logrus.Entry

	mu       sync.Mutex
	active   map[qtcssh.ConfigKey]*entry
	idle     *lru.Cache[qtcssh.ConfigKey, *entry]
	unshared map[*entry]struct{}

	idleTimeout time.Duration
	newBackOff  func() backoff.BackOff

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Pool that keeps at most idleCapacity released-but-unused
// connections warm for reuse (connections currently leased out don't
// count against this limit), closing the least-recently-released one once
// that cache is full. idleTimeout is the grace period before an unleased
// connection is closed outright (zero disables the idle sweeper; the
// idleCapacity-based eviction above still applies). log may be nil.
func New(idleCapacity int, idleTimeout time.Duration, log *logrus.Entry) (*Pool, error) {
	if idleCapacity <= 0 {
		return nil, errors.New("sshpool: idleCapacity must be positive")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	p := &Pool{
		log:         log,
		active:      make(map[qtcssh.ConfigKey]*entry),
		unshared:    make(map[*entry]struct{}),
		idleTimeout: idleTimeout,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
		stop: make(chan struct{}),
	}

	idle, err := lru.NewWithEvict[qtcssh.ConfigKey, *entry](idleCapacity, p.onIdleEvict)
	if err != nil {
		return nil, errors.Wrap(err, "sshpool: create idle cache")
	}
	p.idle = idle

	if idleTimeout > 0 {
		go p.sweepIdle()
	}

	return p, nil
}

// onIdleEvict runs whenever the idle cache drops an entry, whether from
// capacity overflow (Add) or the idle-timeout sweep (Remove). Every entry
// in p.idle has refcount zero by construction (Acquire always removes an
// entry from p.idle before handing it out), so it's always safe to close
// here without re-checking.
func (p *Pool) onIdleEvict(_ qtcssh.ConfigKey, e *entry) {
	go p.closeEntry(e)
}

func (p *Pool) closeEntry(e *entry) {
	if e.conn == nil {
		return
	}
	if err := e.conn.Close(); err != nil {
		p.log.WithError(err).Debug("sshpool: close pooled connection")
	}
}

// Lease is a handle to a pooled Connection; callers must call Release
// exactly once when done with it.
type Lease struct {
	pool     *Pool
	key      qtcssh.ConfigKey
	entry    *entry
	unshared bool
	released bool
}

// Connection returns the underlying, already-authenticated Connection.
func (l *Lease) Connection() *qtcssh.Connection { return l.entry.conn }

// Release returns the Connection to the pool for reuse, or, if nobody else
// is holding it, moves it into the idle cache where it may itself now be
// evicted (closed) to make room for another connection.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true

	e := l.entry
	e.mu.Lock()
	e.refcount--
	lastOut := e.refcount <= 0
	deprecated := e.deprecated
	if lastOut && !deprecated {
		e.idleSince = time.Now()
	}
	e.mu.Unlock()

	if !lastOut {
		return
	}

	p := l.pool

	if l.unshared {
		p.mu.Lock()
		delete(p.unshared, e)
		p.mu.Unlock()
		p.closeEntry(e)
		return
	}

	if deprecated {
		// ForceNewConnection already evicted this key from p.active; the
		// delete below is a no-op unless this entry raced a dial still in
		// flight when it was deprecated (see ForceNewConnection).
		p.mu.Lock()
		delete(p.active, l.key)
		p.mu.Unlock()
		p.closeEntry(e)
		return
	}

	p.mu.Lock()
	delete(p.active, l.key)
	p.idle.Add(l.key, e)
	p.mu.Unlock()
}

// ForceNewConnection evicts whatever connection is currently shared for
// cfg, so the next Acquire for that key dials a fresh one, without
// disturbing Leases already handed out (spec §4.10: "forceNewConnection
// evicts the cached entry and marks any acquired copies deprecated so the
// next acquire gets a fresh connection"). A cached idle entry is closed
// immediately, since nothing holds it. An active entry is marked
// deprecated instead: it keeps serving its existing Lease holders, but
// Release will close it rather than return it to the idle cache, so it
// can never be handed out again. A key with nothing cached is a no-op.
func (p *Pool) ForceNewConnection(cfg Config) {
	key := cfg.Key()

	p.mu.Lock()
	if _, ok := p.idle.Peek(key); ok {
		p.idle.Remove(key) // triggers onIdleEvict, which closes it
	}
	if e, ok := p.active[key]; ok {
		delete(p.active, key)
		e.mu.Lock()
		e.deprecated = true
		e.mu.Unlock()
	}
	p.mu.Unlock()
}

// Acquire returns a Lease on a Connection matching cfg, reusing an active
// or idle connection whose cfg.Key() matches, or dialing a new one
// otherwise (spec §4.10: "sharing keyed by parameter tuple"). Concurrent
// Acquire calls for a brand-new key block on the same in-flight dial
// rather than racing to open duplicate connections.
//
// cfg.ConnectionSharing == false (spec §6) opts this Config out of sharing
// entirely: Acquire always dials a fresh connection and Release always
// closes it rather than caching it, the same as if ForceNewConnection had
// just been called for it — ideal for a caller that knows it wants a
// connection nobody else will touch (e.g. a privileged operation the
// configured host-key mode shouldn't apply to shared sessions).
func (p *Pool) Acquire(cfg Config) (*Lease, error) {
	if !cfg.ConnectionSharing {
		return p.acquireUnshared(cfg)
	}

	key := cfg.Key()

	p.mu.Lock()
	if e, ok := p.active[key]; ok {
		e.mu.Lock()
		e.refcount++
		e.mu.Unlock()
		p.mu.Unlock()
		return &Lease{pool: p, key: key, entry: e}, nil
	}
	if e, ok := p.idle.Get(key); ok {
		p.idle.Remove(key)
		p.active[key] = e
		e.mu.Lock()
		e.refcount++
		e.idleSince = time.Time{}
		e.mu.Unlock()
		p.mu.Unlock()
		return &Lease{pool: p, key: key, entry: e}, nil
	}
	e := &entry{cfg: cfg}
	p.active[key] = e
	p.mu.Unlock()

	if err := e.dial(p.newBackOff); err != nil {
		p.mu.Lock()
		delete(p.active, key)
		p.mu.Unlock()
		return nil, errors.Wrap(err, "sshpool: dial")
	}

	e.mu.Lock()
	e.refcount = 1
	e.mu.Unlock()

	return &Lease{pool: p, key: key, entry: e}, nil
}

func (p *Pool) acquireUnshared(cfg Config) (*Lease, error) {
	e := &entry{cfg: cfg, deprecated: true}

	p.mu.Lock()
	p.unshared[e] = struct{}{}
	p.mu.Unlock()

	if err := e.dial(p.newBackOff); err != nil {
		p.mu.Lock()
		delete(p.unshared, e)
		p.mu.Unlock()
		return nil, errors.Wrap(err, "sshpool: dial")
	}

	e.mu.Lock()
	e.refcount = 1
	e.mu.Unlock()

	return &Lease{pool: p, entry: e, unshared: true}, nil
}

// sweepIdle periodically closes every idle-cached connection that has sat
// unleased for longer than idleTimeout.
func (p *Pool) sweepIdle() {
	interval := p.idleTimeout / 2
	if interval <= 0 {
		interval = p.idleTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// entryIdleTimeout returns how long e may sit unleased before reapIdle
// closes it: cfg.SharingTimeout (spec §6) when the Config set one,
// otherwise falling back to the pool-wide default from New. Unlike
// sshpool.New's idleTimeout, this can vary per Config.
func (e *entry) idleTimeout(poolDefault time.Duration) time.Duration {
	if e.cfg.SharingTimeout > 0 {
		return e.cfg.SharingTimeout
	}
	return poolDefault
}

func (p *Pool) reapIdle() {
	now := time.Now()

	p.mu.Lock()
	var stale []qtcssh.ConfigKey
	for _, key := range p.idle.Keys() {
		e, ok := p.idle.Peek(key)
		if !ok {
			continue
		}
		timeout := e.idleTimeout(p.idleTimeout)
		e.mu.Lock()
		idle := timeout > 0 && !e.idleSince.IsZero() && e.idleSince.Before(now.Add(-timeout))
		e.mu.Unlock()
		if idle {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		p.idle.Remove(key) // triggers onIdleEvict, which closes the entry
	}
	p.mu.Unlock()
}

// Close stops the idle sweeper and closes every cached connection, active,
// idle, or unshared. Outstanding Leases become invalid.
func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	entries := make([]*entry, 0, len(p.active)+p.idle.Len()+len(p.unshared))
	for _, e := range p.active {
		entries = append(entries, e)
	}
	p.active = make(map[qtcssh.ConfigKey]*entry)
	for _, key := range p.idle.Keys() {
		if e, ok := p.idle.Peek(key); ok {
			entries = append(entries, e)
		}
	}
	p.idle.Purge()
	for e := range p.unshared {
		entries = append(entries, e)
	}
	p.unshared = make(map[*entry]struct{})
	p.mu.Unlock()

	for _, e := range entries {
		p.closeEntry(e)
	}
	return nil
}

// Len returns the total number of connections currently cached, active,
// idle, or leased-unshared combined.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) + p.idle.Len() + len(p.unshared)
}
