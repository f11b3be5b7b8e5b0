package filexfer

import "testing"

func TestAttributesRoundTrip(t *testing.T) {
	var a Attributes
	a.SetSize(12345)
	a.SetUIDGID(42, 7)
	a.SetPermissions(ModeRegular | 0o640)
	a.SetACModTime(1000, 2000)
	a.ExtendedAttributes = []ExtendedAttribute{
		{Type: "user.foo", Data: "bar"},
	}
	a.Flags |= AttrExtended

	buf := NewBuffer(make([]byte, 0, a.Len()))
	a.MarshalInto(buf)

	if got := buf.Len(); got != a.Len() {
		t.Fatalf("marshaled length = %d, want Len() = %d", got, a.Len())
	}

	var got Attributes
	if err := got.UnmarshalFrom(buf); err != nil {
		t.Fatalf("UnmarshalFrom: %v", err)
	}

	if got.Size != 12345 {
		t.Errorf("Size = %d, want 12345", got.Size)
	}
	uid, gid := got.GetUserGroup()
	if uid != 42 || gid != 7 {
		t.Errorf("GetUserGroup = (%d, %d), want (42, 7)", uid, gid)
	}
	if got.GetPermissions() != ModeRegular|0o640 {
		t.Errorf("GetPermissions = %v, want %v", got.GetPermissions(), ModeRegular|0o640)
	}
	if got.ATime != 1000 || got.MTime != 2000 {
		t.Errorf("ATime/MTime = %d/%d, want 1000/2000", got.ATime, got.MTime)
	}
	if len(got.ExtendedAttributes) != 1 || got.ExtendedAttributes[0].Type != "user.foo" || got.ExtendedAttributes[0].Data != "bar" {
		t.Errorf("ExtendedAttributes = %+v, want one user.foo=bar entry", got.ExtendedAttributes)
	}
}

func TestAttributesDummyShortCircuits(t *testing.T) {
	buf := NewBuffer(make([]byte, 0, 4))
	buf.AppendUint32(0)

	var a Attributes
	if err := a.UnmarshalFrom(buf); err != nil {
		t.Fatalf("UnmarshalFrom: %v", err)
	}
	if a.Size != 0 || a.Flags != 0 {
		t.Errorf("expected zero-value Attributes for empty flags, got %+v", a)
	}
}

func TestAttributesLenNoFlags(t *testing.T) {
	var a Attributes
	if a.Len() != 4 {
		t.Errorf("Len() with no flags = %d, want 4", a.Len())
	}
}
