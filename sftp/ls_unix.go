// +build aix darwin dragonfly freebsd !android,linux netbsd openbsd solaris

package sftp

import (
	"os"
	"os/user"
	"strconv"
	"sync"
	"syscall"
)

var (
	userLookupCache  sync.Map // uid string -> username string
	groupLookupCache sync.Map // gid string -> groupname string
)

func lsFormatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func lsUsername(uid string) string {
	if name, ok := userLookupCache.Load(uid); ok {
		return name.(string)
	}

	name := uid
	if u, err := user.LookupId(uid); err == nil {
		name = u.Username
	}

	userLookupCache.Store(uid, name)
	return name
}

func lsGroupName(gid string) string {
	if name, ok := groupLookupCache.Load(gid); ok {
		return name.(string)
	}

	name := gid
	if g, err := user.LookupGroupId(gid); err == nil {
		name = g.Name
	}

	groupLookupCache.Store(gid, name)
	return name
}

// lsLinksUserGroup returns the link count, owner and group of fi the way
// `ls -l` would render them, resolving uid/gid to names where possible.
func lsLinksUserGroup(fi os.FileInfo) (numLinks uint64, uid, gid string) {
	numLinks = 1
	uid, gid = "0", "0"

	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		numLinks = uint64(sys.Nlink)
		uid = lsUsername(lsFormatID(sys.Uid))
		gid = lsGroupName(lsFormatID(sys.Gid))
	}

	return numLinks, uid, gid
}
