//go:build !windows && !plan9 && !js

package sftp

import (
	"os"
	"syscall"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// attributesFromFileInfo builds an Attributes value from fi, preferring the
// uid/gid/mode carried in its underlying *syscall.Stat_t when available.
// Modification time is taken from fi.ModTime() rather than the Stat_t's
// atim/mtim fields, since their names vary across unix flavors.
func attributesFromFileInfo(fi os.FileInfo) sshfx.Attributes {
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		var attrs sshfx.Attributes

		attrs.SetSize(uint64(sys.Size))
		attrs.SetUIDGID(sys.Uid, sys.Gid)
		attrs.SetPermissions(sshfx.FileMode(sys.Mode))
		mtime := uint32(fi.ModTime().Unix())
		attrs.SetACModTime(mtime, mtime)

		return attrs
	}

	return attributesFromGenericFileInfo(fi)
}
