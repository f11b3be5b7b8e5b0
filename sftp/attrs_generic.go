package sftp

import (
	"os"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// attributesFromGenericFileInfo builds an Attributes value from the portable
// parts of fi alone, for platforms (or Sys() types) that don't expose a
// *syscall.Stat_t with uid/gid/timestamp fields.
func attributesFromGenericFileInfo(fi os.FileInfo) sshfx.Attributes {
	var attrs sshfx.Attributes

	attrs.SetSize(uint64(fi.Size()))
	attrs.SetPermissions(sshfx.FromGoFileMode(fi.Mode()))
	mtime := uint32(fi.ModTime().Unix())
	attrs.SetACModTime(mtime, mtime)

	return attrs
}
