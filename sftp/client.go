// Package sftp implements an SFTP v3 (draft-ietf-secsh-filexfer-02) client
// over a multiplexed "sftp" subsystem channel (spec §4.8, §4.9).
package sftp

import (
	stderrors "errors"
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/channel"
	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// Client is an SFTP v3 client bound to one subsystem channel. All of its
// methods are safe to call concurrently; requests are pipelined over the
// single underlying channel and dispatched back to their caller by request
// id (§4.9).
//
// Most methods (Remove, Mkdir, Stat, ReadDir, ...) block for their one
// reply, the same way the teacher's client always has. The *Async
// counterparts in async.go (RemoveAsync, MkdirAsync, StatAsync,
// DownloadAsync, ...) are purely additive: they return a job id
// immediately and report the outcome through the callbacks below, so
// several can be issued back to back without waiting on each other
// (§8 scenario 5).
type Client struct {
	c *conn

	nextJobID uint64 // atomic

	mu   sync.Mutex
	jobs map[uint64]*job

	// OnCommandFinished, OnFileInfoAvailable and OnProgress are the three
	// SFTP job events (§6). A nil callback is simply not invoked. Set
	// these before issuing the first *Async call; they are read without a
	// lock, so do not reassign them while jobs may be in flight.
	OnCommandFinished   func(jobID uint64, err error)
	OnFileInfoAvailable func(jobID uint64, infos []os.FileInfo)
	OnProgress          func(jobID uint64, n int64)
}

// NewClient opens an "sftp" subsystem channel on mgr and completes the
// SSH_FXP_INIT/VERSION handshake.
func NewClient(mgr *channel.Manager) (*Client, error) {
	c, err := dial(mgr)
	if err != nil {
		return nil, err
	}
	return &Client{c: c, jobs: make(map[uint64]*job)}, nil
}

// Close tears down the subsystem channel.
func (cl *Client) Close() error {
	return cl.c.Close()
}

// File is an open remote file, implementing io.Reader, io.Writer,
// io.Seeker and io.Closer against SSH_FXP_READ/WRITE/CLOSE.
type File struct {
	c      *conn
	path   string
	handle string
	offset int64
}

func fileOpenFlags(flag int) uint32 {
	var pflags uint32
	switch {
	case flag&os.O_RDWR != 0:
		pflags = sshfx.FlagRead | sshfx.FlagWrite
	case flag&os.O_WRONLY != 0:
		pflags = sshfx.FlagWrite
	default:
		pflags = sshfx.FlagRead
	}
	if flag&os.O_APPEND != 0 {
		pflags |= sshfx.FlagAppend
	}
	if flag&os.O_CREATE != 0 {
		pflags |= sshfx.FlagCreate
	}
	if flag&os.O_TRUNC != 0 {
		pflags |= sshfx.FlagTruncate
	}
	if flag&os.O_EXCL != 0 {
		pflags |= sshfx.FlagExclusive
	}
	return pflags
}

// OpenFile opens path with the given os.O_* flags (§4.8: SSH_FXP_OPEN).
func (cl *Client) OpenFile(filePath string, flag int) (*File, error) {
	pkt := &sshfx.OpenPacket{Filename: filePath, PFlags: fileOpenFlags(flag)}

	r := cl.c.sendWait(pkt)
	if r.err != nil {
		return nil, errors.Wrapf(r.err, "sftp: open %q", filePath)
	}

	handle, err := handleFromResult(r)
	if err != nil {
		return nil, errors.Wrapf(err, "sftp: open %q", filePath)
	}

	return &File{c: cl.c, path: filePath, handle: handle}, nil
}

// Open opens path read-only.
func (cl *Client) Open(filePath string) (*File, error) {
	return cl.OpenFile(filePath, os.O_RDONLY)
}

// Create truncates (or creates) path for writing.
func (cl *Client) Create(filePath string) (*File, error) {
	return cl.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func handleFromResult(r result) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	defer connReleasePage(r)
	switch r.typ {
	case sshfx.PacketTypeHandle:
		var h sshfx.HandlePacket
		if err := h.UnmarshalPacketBody(r.body); err != nil {
			return "", err
		}
		return h.Handle, nil
	case sshfx.PacketTypeStatus:
		return "", statusToErrorUnreleased(r)
	default:
		return "", errors.Errorf("sftp: unexpected response %s", r.typ)
	}
}

// connReleasePage is a no-op for synthetic results (e.g. a conn-closed
// error) that carry no allocator page; it exists so helpers can
// defer-release uniformly regardless of where the result came from.
func connReleasePage(r result) {
	if r.release != nil {
		r.release()
	}
}

func statusResultError(r result) error {
	defer connReleasePage(r)
	return statusToErrorUnreleased(r)
}

func statusToErrorUnreleased(r result) error {
	var st sshfx.StatusPacket
	if err := st.UnmarshalPacketBody(r.body); err != nil {
		return err
	}
	return statusToError(&st)
}

// expectStatus reads an OK/EOF-or-error SSH_FXP_STATUS reply.
func expectStatus(r result) error {
	if r.err != nil {
		return r.err
	}
	defer connReleasePage(r)
	if r.typ != sshfx.PacketTypeStatus {
		return errors.Errorf("sftp: unexpected response %s", r.typ)
	}
	return statusToErrorUnreleased(r)
}

// Close closes the remote file handle (SSH_FXP_CLOSE).
func (f *File) Close() error {
	return expectStatus(f.c.sendWait(&sshfx.ClosePacket{Handle: f.handle}))
}

// ReadAt reads len(p) bytes starting at the given offset, chunked to
// maxMsgLength and pipelined up to transferConcurrency READ requests in
// flight (SSH_FXP_READ; §4.9's "up to 10 parallel requests" applies to
// downloads the same way it already did to WriteAt's uploads).
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return pipelinedRead(f.c, f.handle, p, off)
}

// Read implements io.Reader, advancing the file's sequential offset.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// WriteAt writes p at the given offset (SSH_FXP_WRITE), chunked to
// maxMsgLength and pipelined up to transferConcurrency requests in flight.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return pipelinedWrite(f.c, f.handle, p, off)
}

// Write implements io.Writer, advancing the file's sequential offset.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// Seek implements io.Seeker against the client-tracked offset; SFTP v3 has
// no seek request, every read/write already names an absolute offset.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		fi, err := f.Stat()
		if err != nil {
			return 0, err
		}
		f.offset = fi.Size() + offset
	default:
		return 0, errors.Errorf("sftp: invalid whence %d", whence)
	}
	return f.offset, nil
}

// Stat fstats the open handle (SSH_FXP_FSTAT).
func (f *File) Stat() (os.FileInfo, error) {
	r := f.c.sendWait(&sshfx.FStatPacket{Handle: f.handle})
	return fileInfoFromResult(path.Base(f.path), r)
}

func fileInfoFromResult(name string, r result) (os.FileInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	defer connReleasePage(r)
	switch r.typ {
	case sshfx.PacketTypeAttrs:
		var a sshfx.AttrsPacket
		if err := a.UnmarshalPacketBody(r.body); err != nil {
			return nil, err
		}
		return &fileInfo{name: name, attrs: a.Attrs}, nil
	case sshfx.PacketTypeStatus:
		return nil, statusToErrorUnreleased(r)
	default:
		return nil, errors.Errorf("sftp: unexpected response %s", r.typ)
	}
}

// fileInfo adapts an Attributes packet to os.FileInfo.
type fileInfo struct {
	name  string
	attrs sshfx.Attributes
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return int64(fi.attrs.Size) }
func (fi *fileInfo) Mode() os.FileMode {
	return fi.attrs.GetPermissions().ToGoFileMode()
}
func (fi *fileInfo) ModTime() time.Time { return time.Unix(int64(fi.attrs.MTime), 0) }
func (fi *fileInfo) IsDir() bool        { return fi.attrs.GetPermissions().IsDir() }
func (fi *fileInfo) Sys() interface{}   { return &fi.attrs }

// Stat stats path, following symlinks (SSH_FXP_STAT).
func (cl *Client) Stat(filePath string) (os.FileInfo, error) {
	r := cl.c.sendWait(&sshfx.StatPacket{Path: filePath})
	return fileInfoFromResult(path.Base(filePath), r)
}

// Lstat stats path without following a terminal symlink (SSH_FXP_LSTAT).
func (cl *Client) Lstat(filePath string) (os.FileInfo, error) {
	r := cl.c.sendWait(&sshfx.LstatPacket{Path: filePath})
	return fileInfoFromResult(path.Base(filePath), r)
}

// ReadLink returns the target of a symbolic link (SSH_FXP_READLINK).
func (cl *Client) ReadLink(filePath string) (string, error) {
	r := cl.c.sendWait(&sshfx.ReadlinkPacket{Path: filePath})
	return firstNameFromResult(r)
}

// RealPath canonicalizes path (SSH_FXP_REALPATH).
func (cl *Client) RealPath(filePath string) (string, error) {
	r := cl.c.sendWait(&sshfx.RealpathPacket{Path: filePath})
	return firstNameFromResult(r)
}

// Getwd returns the server's notion of the current working directory by
// canonicalizing ".".
func (cl *Client) Getwd() (string, error) {
	return cl.RealPath(".")
}

func firstNameFromResult(r result) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	defer connReleasePage(r)
	switch r.typ {
	case sshfx.PacketTypeName:
		var n sshfx.NamePacket
		if err := n.UnmarshalPacketBody(r.body); err != nil {
			return "", err
		}
		if len(n.Entries) == 0 {
			return "", errors.New("sftp: empty NAME response")
		}
		return n.Entries[0].Filename, nil
	case sshfx.PacketTypeStatus:
		return "", statusToErrorUnreleased(r)
	default:
		return "", errors.Errorf("sftp: unexpected response %s", r.typ)
	}
}

// Symlink creates a symbolic link at linkPath pointing at targetPath
// (SSH_FXP_SYMLINK; argument order is fixed up internally, see
// SymlinkPacket).
func (cl *Client) Symlink(targetPath, linkPath string) error {
	return expectStatus(cl.c.sendWait(&sshfx.SymlinkPacket{LinkPath: linkPath, TargetPath: targetPath}))
}

// Rename renames oldPath to newPath (SSH_FXP_RENAME).
func (cl *Client) Rename(oldPath, newPath string) error {
	return expectStatus(cl.c.sendWait(&sshfx.RenamePacket{OldPath: oldPath, NewPath: newPath}))
}

// Remove removes a file (SSH_FXP_REMOVE).
func (cl *Client) Remove(filePath string) error {
	return expectStatus(cl.c.sendWait(&sshfx.RemovePacket{Path: filePath}))
}

// Mkdir creates a directory (SSH_FXP_MKDIR).
func (cl *Client) Mkdir(dirPath string) error {
	return expectStatus(cl.c.sendWait(&sshfx.MkdirPacket{Path: dirPath}))
}

// MkdirAll creates dirPath and any missing parents, tolerating a parent
// that already exists.
func (cl *Client) MkdirAll(dirPath string) error {
	if dirPath == "" || dirPath == "." || dirPath == "/" {
		return nil
	}
	if fi, err := cl.Stat(dirPath); err == nil {
		if !fi.IsDir() {
			return errors.Errorf("sftp: %q exists and is not a directory", dirPath)
		}
		return nil
	}

	if err := cl.MkdirAll(path.Dir(dirPath)); err != nil {
		return err
	}

	err := cl.Mkdir(dirPath)
	if err != nil && stderrors.Is(err, ErrSSHFxFailure) {
		// Racing creation from elsewhere; re-stat to confirm it landed.
		if fi, statErr := cl.Stat(dirPath); statErr == nil && fi.IsDir() {
			return nil
		}
	}
	return err
}

// Rmdir removes an empty directory (SSH_FXP_RMDIR).
func (cl *Client) Rmdir(dirPath string) error {
	return expectStatus(cl.c.sendWait(&sshfx.RmdirPacket{Path: dirPath}))
}

// Chmod changes permissions (SSH_FXP_SETSTAT).
func (cl *Client) Chmod(filePath string, mode os.FileMode) error {
	var attrs sshfx.Attributes
	attrs.SetPermissions(sshfx.FromGoFileMode(mode))
	return expectStatus(cl.c.sendWait(&sshfx.SetstatPacket{Path: filePath, Attrs: attrs}))
}

// Chown changes ownership (SSH_FXP_SETSTAT).
func (cl *Client) Chown(filePath string, uid, gid int) error {
	var attrs sshfx.Attributes
	attrs.SetUIDGID(uint32(uid), uint32(gid))
	return expectStatus(cl.c.sendWait(&sshfx.SetstatPacket{Path: filePath, Attrs: attrs}))
}

// Chtimes changes access and modification times (SSH_FXP_SETSTAT).
func (cl *Client) Chtimes(filePath string, atime, mtime time.Time) error {
	var attrs sshfx.Attributes
	attrs.SetACModTime(uint32(atime.Unix()), uint32(mtime.Unix()))
	return expectStatus(cl.c.sendWait(&sshfx.SetstatPacket{Path: filePath, Attrs: attrs}))
}

// Truncate changes the size of filePath (SSH_FXP_SETSTAT).
func (cl *Client) Truncate(filePath string, size int64) error {
	var attrs sshfx.Attributes
	attrs.SetSize(uint64(size))
	return expectStatus(cl.c.sendWait(&sshfx.SetstatPacket{Path: filePath, Attrs: attrs}))
}

// ReadDir lists the contents of dirPath (SSH_FXP_OPENDIR + repeated
// SSH_FXP_READDIR until SSH_FX_EOF, then SSH_FXP_CLOSE).
func (cl *Client) ReadDir(dirPath string) ([]os.FileInfo, error) {
	r := cl.c.sendWait(&sshfx.OpenDirPacket{Path: dirPath})
	handle, err := handleFromResult(r)
	if err != nil {
		return nil, errors.Wrapf(err, "sftp: opendir %q", dirPath)
	}
	defer expectStatus(cl.c.sendWait(&sshfx.ClosePacket{Handle: handle}))

	var entries []os.FileInfo
	for {
		r := cl.c.sendWait(&sshfx.ReadDirPacket{Handle: handle})
		if r.err != nil {
			return nil, r.err
		}

		switch r.typ {
		case sshfx.PacketTypeName:
			var n sshfx.NamePacket
			unmarshalErr := n.UnmarshalPacketBody(r.body)
			connReleasePage(r)
			if unmarshalErr != nil {
				return nil, unmarshalErr
			}
			for _, e := range n.Entries {
				entries = append(entries, &fileInfo{name: e.Filename, attrs: e.Attrs})
			}
		case sshfx.PacketTypeStatus:
			if err := statusResultError(r); err != nil {
				if stderrors.Is(err, ErrSSHFxEOF) {
					sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
					return entries, nil
				}
				return nil, err
			}
		default:
			connReleasePage(r)
			return nil, errors.Errorf("sftp: unexpected response %s", r.typ)
		}
	}
}
