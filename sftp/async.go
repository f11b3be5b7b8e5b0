package sftp

import (
	stderrors "errors"
	"os"
	"path"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// JobState is a handle-bearing SFTP job's position in the §4.9 lifecycle:
//
//	Inactive -> OpenRequested -> Open -> CloseRequested
//
// Non-handle jobs (stat, mkdir, rmdir, rm, rename, symlink) never leave
// Inactive; they complete on their first STATUS reply.
type JobState int

const (
	JobInactive JobState = iota
	JobOpenRequested
	JobOpen
	JobCloseRequested
)

func (s JobState) String() string {
	switch s {
	case JobInactive:
		return "Inactive"
	case JobOpenRequested:
		return "OpenRequested"
	case JobOpen:
		return "Open"
	case JobCloseRequested:
		return "CloseRequested"
	default:
		return "Unknown"
	}
}

// job tracks one outstanding *Async call for the lifetime of Client.jobs.
type job struct {
	id    uint64
	state JobState
}

func (cl *Client) newJobID() uint64 {
	return atomic.AddUint64(&cl.nextJobID, 1)
}

func (cl *Client) registerJob(id uint64) *job {
	j := &job{id: id, state: JobInactive}
	cl.mu.Lock()
	cl.jobs[id] = j
	cl.mu.Unlock()
	return j
}

func (cl *Client) setJobState(j *job, s JobState) {
	cl.mu.Lock()
	j.state = s
	cl.mu.Unlock()
}

func (cl *Client) finishJob(j *job) {
	cl.mu.Lock()
	delete(cl.jobs, j.id)
	cl.mu.Unlock()
}

func (cl *Client) commandFinished(jobID uint64, err error) {
	if cl.OnCommandFinished != nil {
		cl.OnCommandFinished(jobID, err)
	}
}

func (cl *Client) fileInfoAvailable(jobID uint64, infos []os.FileInfo) {
	if cl.OnFileInfoAvailable != nil {
		cl.OnFileInfoAvailable(jobID, infos)
	}
}

func (cl *Client) progress(jobID uint64, n int64) {
	if cl.OnProgress != nil {
		cl.OnProgress(jobID, n)
	}
}

// commandAsync issues a non-handle-bearing request (MKDIR/RMDIR/RM/
// RENAME/SYMLINK family) without blocking the caller, reporting the
// outcome via OnCommandFinished once the one STATUS reply for it lands
// (§4.9: "non-handle jobs ... complete on first STATUS response").
func (cl *Client) commandAsync(pkt marshaler) uint64 {
	id := cl.newJobID()
	j := cl.registerJob(id)

	_, ch, err := cl.c.send(pkt)
	if err != nil {
		cl.finishJob(j)
		cl.commandFinished(id, err)
		return id
	}

	go func() {
		defer cl.finishJob(j)
		cl.commandFinished(id, expectStatus(<-ch))
	}()

	return id
}

// RemoveAsync is the non-blocking form of Remove.
func (cl *Client) RemoveAsync(filePath string) uint64 {
	return cl.commandAsync(&sshfx.RemovePacket{Path: filePath})
}

// MkdirAsync is the non-blocking form of Mkdir.
func (cl *Client) MkdirAsync(dirPath string) uint64 {
	return cl.commandAsync(&sshfx.MkdirPacket{Path: dirPath})
}

// RmdirAsync is the non-blocking form of Rmdir.
func (cl *Client) RmdirAsync(dirPath string) uint64 {
	return cl.commandAsync(&sshfx.RmdirPacket{Path: dirPath})
}

// RenameAsync is the non-blocking form of Rename.
func (cl *Client) RenameAsync(oldPath, newPath string) uint64 {
	return cl.commandAsync(&sshfx.RenamePacket{OldPath: oldPath, NewPath: newPath})
}

// SymlinkAsync is the non-blocking form of Symlink.
func (cl *Client) SymlinkAsync(targetPath, linkPath string) uint64 {
	return cl.commandAsync(&sshfx.SymlinkPacket{LinkPath: linkPath, TargetPath: targetPath})
}

// fileInfoAsync issues a STAT/LSTAT-family request without blocking,
// delivering its single os.FileInfo via OnFileInfoAvailable immediately
// before OnCommandFinished.
func (cl *Client) fileInfoAsync(pkt marshaler, name string) uint64 {
	id := cl.newJobID()
	j := cl.registerJob(id)

	_, ch, err := cl.c.send(pkt)
	if err != nil {
		cl.finishJob(j)
		cl.commandFinished(id, err)
		return id
	}

	go func() {
		defer cl.finishJob(j)

		fi, err := fileInfoFromResult(name, <-ch)
		if err != nil {
			cl.commandFinished(id, err)
			return
		}
		cl.fileInfoAvailable(id, []os.FileInfo{fi})
		cl.commandFinished(id, nil)
	}()

	return id
}

// StatAsync is the non-blocking form of Stat.
func (cl *Client) StatAsync(filePath string) uint64 {
	return cl.fileInfoAsync(&sshfx.StatPacket{Path: filePath}, path.Base(filePath))
}

// LstatAsync is the non-blocking form of Lstat.
func (cl *Client) LstatAsync(filePath string) uint64 {
	return cl.fileInfoAsync(&sshfx.LstatPacket{Path: filePath}, path.Base(filePath))
}

// ReadDirAsync is the non-blocking form of ReadDir. Unlike the simple
// command/fileInfo jobs above, listing a directory genuinely is a
// handle-bearing job, so this walks the §4.9 lifecycle explicitly:
// OpenRequested while OPENDIR is in flight, Open across the repeated
// READDIR requests, CloseRequested while the final CLOSE drains. The full
// listing is delivered once via OnFileInfoAvailable, immediately before
// OnCommandFinished.
func (cl *Client) ReadDirAsync(dirPath string) uint64 {
	id := cl.newJobID()
	j := cl.registerJob(id)
	cl.setJobState(j, JobOpenRequested)

	_, ch, err := cl.c.send(&sshfx.OpenDirPacket{Path: dirPath})
	if err != nil {
		cl.finishJob(j)
		cl.commandFinished(id, err)
		return id
	}

	go func() {
		defer cl.finishJob(j)

		handle, err := handleFromResult(<-ch)
		if err != nil {
			cl.commandFinished(id, errors.Wrapf(err, "sftp: opendir %q", dirPath))
			return
		}
		cl.setJobState(j, JobOpen)

		var (
			entries []os.FileInfo
			readErr error
		)
	readLoop:
		for {
			r := cl.c.sendWait(&sshfx.ReadDirPacket{Handle: handle})
			if r.err != nil {
				readErr = r.err
				break
			}

			switch r.typ {
			case sshfx.PacketTypeName:
				var n sshfx.NamePacket
				unmarshalErr := n.UnmarshalPacketBody(r.body)
				connReleasePage(r)
				if unmarshalErr != nil {
					readErr = unmarshalErr
					break readLoop
				}
				for _, e := range n.Entries {
					entries = append(entries, &fileInfo{name: e.Filename, attrs: e.Attrs})
				}
			case sshfx.PacketTypeStatus:
				if err := statusResultError(r); err != nil {
					if !stderrors.Is(err, ErrSSHFxEOF) {
						readErr = err
					}
					break readLoop
				}
			default:
				connReleasePage(r)
				readErr = errors.Errorf("sftp: unexpected response %s", r.typ)
				break readLoop
			}
		}

		cl.setJobState(j, JobCloseRequested)
		closeErr := expectStatus(cl.c.sendWait(&sshfx.ClosePacket{Handle: handle}))

		if readErr != nil {
			cl.commandFinished(id, readErr)
			return
		}

		sort.Slice(entries, func(i, k int) bool { return entries[i].Name() < entries[k].Name() })
		cl.fileInfoAvailable(id, entries)
		cl.commandFinished(id, closeErr)
	}()

	return id
}

// progressWriter reports every successful local write as OnProgress, used
// by DownloadAsync to turn CopyTo's pipelined reads into progress events.
type progressWriter struct {
	cl    *Client
	jobID uint64
	dst   interface{ Write([]byte) (int, error) }
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.dst.Write(p)
	if n > 0 {
		pw.cl.progress(pw.jobID, int64(n))
	}
	return n, err
}

// progressReader reports every successful local read as OnProgress, used
// by UploadAsync to turn CopyFrom's pipelined writes into progress events.
type progressReader struct {
	cl    *Client
	jobID uint64
	src   interface{ Read([]byte) (int, error) }
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.src.Read(p)
	if n > 0 {
		pr.cl.progress(pr.jobID, int64(n))
	}
	return n, err
}

// DownloadAsync downloads remotePath to localPath without blocking the
// caller. It walks the same OPEN/Open/CLOSE handle lifecycle as the
// blocking Client.Open + File.CopyTo path, reports bytes landed locally via OnProgress as
// CopyTo's pipelined READs complete, and reports the outcome via
// OnCommandFinished.
func (cl *Client) DownloadAsync(remotePath, localPath string) uint64 {
	id := cl.newJobID()
	j := cl.registerJob(id)
	cl.setJobState(j, JobOpenRequested)

	go func() {
		defer cl.finishJob(j)
		cl.commandFinished(id, cl.download(id, j, remotePath, localPath))
	}()

	return id
}

func (cl *Client) download(jobID uint64, j *job, remotePath, localPath string) error {
	rf, err := cl.Open(remotePath)
	if err != nil {
		return errors.Wrapf(err, "sftp: download %q", remotePath)
	}
	cl.setJobState(j, JobOpen)
	defer func() {
		cl.setJobState(j, JobCloseRequested)
		rf.Close()
	}()

	lf, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer lf.Close()

	_, err = rf.CopyTo(&progressWriter{cl: cl, jobID: jobID, dst: lf})
	return err
}

// UploadAsync uploads localPath to remotePath (OverwriteExisting) without
// blocking the caller, reporting bytes read locally via OnProgress as
// CopyFrom's pipelined WRITEs are handed off, and the outcome via
// OnCommandFinished.
func (cl *Client) UploadAsync(localPath, remotePath string) uint64 {
	id := cl.newJobID()
	j := cl.registerJob(id)
	cl.setJobState(j, JobOpenRequested)

	go func() {
		defer cl.finishJob(j)
		cl.commandFinished(id, cl.upload(id, j, localPath, remotePath))
	}()

	return id
}

func (cl *Client) upload(jobID uint64, j *job, localPath, remotePath string) error {
	lf, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer lf.Close()

	rf, err := cl.Create(remotePath)
	if err != nil {
		return errors.Wrapf(err, "sftp: upload %q", remotePath)
	}
	cl.setJobState(j, JobOpen)
	defer func() {
		cl.setJobState(j, JobCloseRequested)
		rf.Close()
	}()

	_, err = rf.CopyFrom(&progressReader{cl: cl, jobID: jobID, src: lf})
	return err
}
