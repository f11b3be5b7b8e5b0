//go:build windows || plan9 || js

package sftp

import (
	"os"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// attributesFromFileInfo has no uid/gid/mode bits to draw on here; it falls
// back to the portable fields of fi alone.
func attributesFromFileInfo(fi os.FileInfo) sshfx.Attributes {
	return attributesFromGenericFileInfo(fi)
}
