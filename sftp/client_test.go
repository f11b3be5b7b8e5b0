package sftp

import (
	"os"
	"testing"
	"time"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

func TestFileOpenFlags(t *testing.T) {
	cases := []struct {
		flag int
		want uint32
	}{
		{os.O_RDONLY, sshfx.FlagRead},
		{os.O_WRONLY, sshfx.FlagWrite},
		{os.O_RDWR, sshfx.FlagRead | sshfx.FlagWrite},
		{os.O_WRONLY | os.O_CREATE | os.O_TRUNC, sshfx.FlagWrite | sshfx.FlagCreate | sshfx.FlagTruncate},
		{os.O_WRONLY | os.O_CREATE | os.O_APPEND, sshfx.FlagWrite | sshfx.FlagCreate | sshfx.FlagAppend},
		{os.O_WRONLY | os.O_CREATE | os.O_EXCL, sshfx.FlagWrite | sshfx.FlagCreate | sshfx.FlagExclusive},
	}

	for _, c := range cases {
		if got := fileOpenFlags(c.flag); got != c.want {
			t.Errorf("fileOpenFlags(%#o) = %#x, want %#x", c.flag, got, c.want)
		}
	}
}

func TestFileInfoAdapter(t *testing.T) {
	var attrs sshfx.Attributes
	attrs.SetSize(1024)
	attrs.SetPermissions(sshfx.ModeDir | 0o750)
	attrs.SetACModTime(1700000000, 1700000000)

	fi := &fileInfo{name: "somedir", attrs: attrs}

	if fi.Name() != "somedir" {
		t.Errorf("Name() = %q, want %q", fi.Name(), "somedir")
	}
	if fi.Size() != 1024 {
		t.Errorf("Size() = %d, want 1024", fi.Size())
	}
	if !fi.IsDir() {
		t.Error("expected IsDir() to be true")
	}
	if fi.Mode().Perm() != 0o750 {
		t.Errorf("Mode().Perm() = %o, want %o", fi.Mode().Perm(), 0o750)
	}
	if !fi.ModTime().Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ModTime() = %v, want %v", fi.ModTime(), time.Unix(1700000000, 0))
	}
	if fi.Sys() != &fi.attrs {
		t.Error("Sys() should return a pointer to the backing Attributes")
	}
}

func TestHandleFromResultStatusError(t *testing.T) {
	var st sshfx.StatusPacket
	st.StatusCode = sshfx.StatusPermissionDenied
	raw, err := st.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	buf := sshfx.NewBuffer(raw[4:]) // MarshalBinary includes the 4-byte length prefix; drop it
	if _, err := buf.ConsumeUint8(); err != nil {
		t.Fatalf("ConsumeUint8: %v", err)
	}
	if _, err := buf.ConsumeUint32(); err != nil {
		t.Fatalf("ConsumeUint32: %v", err)
	}

	_, err = handleFromResult(result{typ: sshfx.PacketTypeStatus, body: buf})
	if err == nil {
		t.Fatal("expected an error from a STATUS reply")
	}
}
