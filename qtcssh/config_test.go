package qtcssh

import "testing"

func TestDefaultConfigAppliesOptions(t *testing.T) {
	cfg := DefaultConfig("example.com", 2222, "alice", WithPassword("hunter2"))

	if cfg.Host != "example.com" || cfg.Port != 2222 || cfg.User != "alice" {
		t.Fatalf("unexpected base fields: %+v", cfg)
	}
	if cfg.AuthMethod != AuthMethodPassword || cfg.Password != "hunter2" {
		t.Errorf("expected password auth to be configured, got %+v", cfg)
	}
	if cfg.DialTimeout == 0 || cfg.ReplyTimeout == 0 || cfg.KeepAliveInterval == 0 {
		t.Errorf("expected non-zero defaults, got %+v", cfg)
	}
}

func TestConfigEqualIgnoresCollaborators(t *testing.T) {
	a := DefaultConfig("host", 22, "bob", WithPassword("secret"))
	b := DefaultConfig("host", 22, "bob", WithPassword("secret"))
	b.Logger = nil // already nil, but demonstrates collaborator fields don't affect equality

	if !a.Equal(b) {
		t.Errorf("expected configs with identical host/user/password to be Equal")
	}

	c := DefaultConfig("host", 22, "bob", WithPassword("different"))
	if a.Equal(c) {
		t.Errorf("expected configs with different passwords to not be Equal")
	}
}

func TestConfigEqualDistinguishesAuthMethod(t *testing.T) {
	pw := DefaultConfig("host", 22, "carol", WithPassword(""))
	key := DefaultConfig("host", 22, "carol", WithPrivateKeyFile("/home/carol/.ssh/id_ed25519", nil))

	if pw.Equal(key) {
		t.Errorf("expected password and publickey configs for the same user to not be Equal")
	}
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig("10.0.0.1", 2200, "deploy")
	if got, want := cfg.Addr(), "10.0.0.1:2200"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
