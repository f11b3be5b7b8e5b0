//go:build windows || plan9 || js || android || ios || zos

package sftp

import "os"

// lsLinksUserGroup has no portable link-count/uid/gid source on this
// platform; FormatLongname overrides these from remote Attributes when
// available, so this only matters for purely-local os.FileInfo values.
func lsLinksUserGroup(fi os.FileInfo) (numLinks uint64, uid, gid string) {
	return 1, "0", "0"
}
