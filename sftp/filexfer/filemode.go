package filexfer

import "os"

// FileMode represents the SFTP v3 permissions/filetype bitfield carried in
// an ATTRS permissions field (draft-ietf-secsh-filexfer-02 section 5.1),
// which follows the traditional POSIX st_mode layout.
type FileMode uint32

// File type bits, matching POSIX S_IFMT and friends.
const (
	ModePerm FileMode = 0o7777 // permission bits, including setuid/setgid/sticky

	ModeType       FileMode = 0xF000
	ModeNamedPipe  FileMode = 0x1000
	ModeCharDevice FileMode = 0x2000
	ModeDir        FileMode = 0x4000
	ModeDevice     FileMode = 0x6000
	ModeRegular    FileMode = 0x8000
	ModeSymlink    FileMode = 0xA000
	ModeSocket     FileMode = 0xC000

	ModeSetUID FileMode = 0o4000
	ModeSetGID FileMode = 0o2000
	ModeSticky FileMode = 0o1000
)

// IsDir reports whether m describes a directory.
func (m FileMode) IsDir() bool { return m&ModeType == ModeDir }

// IsRegular reports whether m describes a regular file.
func (m FileMode) IsRegular() bool { return m&ModeType == ModeRegular }

// IsSymlink reports whether m describes a symbolic link.
func (m FileMode) IsSymlink() bool { return m&ModeType == ModeSymlink }

// String renders m the way `ls -l` renders a file mode, e.g. "-rwxr-xr-x".
func (m FileMode) String() string {
	buf := [10]byte{'?', '-', '-', '-', '-', '-', '-', '-', '-', '-'}

	switch m & ModeType {
	case ModeDir:
		buf[0] = 'd'
	case ModeSymlink:
		buf[0] = 'l'
	case ModeCharDevice:
		buf[0] = 'c'
	case ModeDevice:
		buf[0] = 'b'
	case ModeNamedPipe:
		buf[0] = 'p'
	case ModeSocket:
		buf[0] = 's'
	case ModeRegular:
		buf[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if m&(1<<uint(8-i)) != 0 {
			buf[i+1] = rwx[i]
		}
	}

	if m&ModeSetUID != 0 {
		if buf[3] == 'x' {
			buf[3] = 's'
		} else {
			buf[3] = 'S'
		}
	}
	if m&ModeSetGID != 0 {
		if buf[6] == 'x' {
			buf[6] = 's'
		} else {
			buf[6] = 'S'
		}
	}
	if m&ModeSticky != 0 {
		if buf[9] == 'x' {
			buf[9] = 't'
		} else {
			buf[9] = 'T'
		}
	}

	return string(buf[:])
}

// FromGoFileMode converts a Go os.FileMode into the equivalent FileMode.
func FromGoFileMode(mode os.FileMode) FileMode {
	ret := FileMode(mode.Perm())

	switch {
	case mode&os.ModeDir != 0:
		ret |= ModeDir
	case mode&os.ModeSymlink != 0:
		ret |= ModeSymlink
	case mode&os.ModeNamedPipe != 0:
		ret |= ModeNamedPipe
	case mode&os.ModeSocket != 0:
		ret |= ModeSocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			ret |= ModeCharDevice
		} else {
			ret |= ModeDevice
		}
	default:
		ret |= ModeRegular
	}

	if mode&os.ModeSetuid != 0 {
		ret |= ModeSetUID
	}
	if mode&os.ModeSetgid != 0 {
		ret |= ModeSetGID
	}
	if mode&os.ModeSticky != 0 {
		ret |= ModeSticky
	}

	return ret
}

// ToGoFileMode converts m into the equivalent Go os.FileMode.
func (m FileMode) ToGoFileMode() os.FileMode {
	ret := os.FileMode(m & ModePerm &^ (ModeSetUID | ModeSetGID | ModeSticky))

	switch m & ModeType {
	case ModeDir:
		ret |= os.ModeDir
	case ModeSymlink:
		ret |= os.ModeSymlink
	case ModeNamedPipe:
		ret |= os.ModeNamedPipe
	case ModeSocket:
		ret |= os.ModeSocket
	case ModeDevice:
		ret |= os.ModeDevice
	case ModeCharDevice:
		ret |= os.ModeDevice | os.ModeCharDevice
	}

	if m&ModeSetUID != 0 {
		ret |= os.ModeSetuid
	}
	if m&ModeSetGID != 0 {
		ret |= os.ModeSetgid
	}
	if m&ModeSticky != 0 {
		ret |= os.ModeSticky
	}

	return ret
}
