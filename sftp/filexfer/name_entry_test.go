package filexfer

import "testing"

func TestNameEntryRoundTrip(t *testing.T) {
	var attrs Attributes
	attrs.SetSize(4096)
	attrs.SetPermissions(ModeDir | 0o755)
	attrs.SetUIDGID(1000, 1000)

	want := NameEntry{
		Filename: "example",
		Longname: "drwxr-xr-x   2 1000     1000         4096 Jan  1 00:00 example",
		Attrs:    attrs,
	}

	buf := NewBuffer(make([]byte, 0, want.Len()))
	want.MarshalInto(buf)

	if got := buf.Len(); got != want.Len() {
		t.Fatalf("marshaled length = %d, want Len() = %d", got, want.Len())
	}

	var got NameEntry
	if err := got.UnmarshalFrom(buf); err != nil {
		t.Fatalf("UnmarshalFrom: %v", err)
	}

	if got.Filename != want.Filename {
		t.Errorf("Filename = %q, want %q", got.Filename, want.Filename)
	}
	if got.Longname != want.Longname {
		t.Errorf("Longname = %q, want %q", got.Longname, want.Longname)
	}
	if got.Attrs.Size != want.Attrs.Size {
		t.Errorf("Attrs.Size = %d, want %d", got.Attrs.Size, want.Attrs.Size)
	}
	if got.Attrs.GetPermissions() != want.Attrs.GetPermissions() {
		t.Errorf("Attrs permissions = %v, want %v", got.Attrs.GetPermissions(), want.Attrs.GetPermissions())
	}
}

func TestNameEntryLenMatchesMarshaled(t *testing.T) {
	e := NameEntry{Filename: "a", Longname: "b"}
	if e.Len() != 4+1+4+1+4 {
		t.Errorf("Len() = %d, want %d", e.Len(), 4+1+4+1+4)
	}
}
