package sftp

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
)

// transferConcurrency bounds the number of WRITE (or READ) requests a
// chunked transfer keeps in flight at once (§4.9: "up to 10 parallel
// requests").
const transferConcurrency = 10

// pipelinedWrite splits p into maxMsgLength chunks and issues their WRITE
// requests concurrently, bounded by transferConcurrency, collecting the
// first error encountered without losing track of the others in flight.
func pipelinedWrite(c *conn, handle string, p []byte, off int64) (int, error) {
	sem := semaphore.NewWeighted(transferConcurrency)
	ctx := context.Background()

	type pending struct {
		ch  <-chan result
		n   int
		err error
	}

	var (
		sent     []pending
		firstErr error
	)

	for n := 0; n < len(p); {
		chunk := len(p) - n
		if chunk > maxMsgLength {
			chunk = maxMsgLength
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			firstErr = err
			break
		}

		_, ch, err := c.send(&sshfx.WritePacket{
			Handle: handle,
			Offset: uint64(off) + uint64(n),
			Data:   p[n : n+chunk],
		})
		if err != nil {
			sem.Release(1)
			firstErr = err
			break
		}

		sent = append(sent, pending{ch: ch, n: chunk})
		n += chunk
	}

	written := 0
	for _, s := range sent {
		r := <-s.ch
		sem.Release(1)

		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if err := expectStatus(r); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written += s.n
	}

	return written, firstErr
}

// pipelinedRead splits the read of len(p) bytes starting at off into
// maxMsgLength chunks and issues their READ requests concurrently, bounded
// by transferConcurrency, mirroring pipelinedWrite. Results are collected
// in offset order so the first short read, STATUS (EOF or error), or
// transport error truncates the returned byte count at exactly the point a
// serial reader would have stopped; chunks that landed past that point are
// discarded.
func pipelinedRead(c *conn, handle string, p []byte, off int64) (int, error) {
	sem := semaphore.NewWeighted(transferConcurrency)
	ctx := context.Background()

	type pending struct {
		ch    <-chan result
		start int
		chunk int
	}

	type outcome struct {
		data []byte
		eof  bool
		err  error
	}

	var (
		sent     []pending
		firstErr error
	)

	for n := 0; n < len(p); {
		chunk := len(p) - n
		if chunk > maxMsgLength {
			chunk = maxMsgLength
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			firstErr = err
			break
		}

		_, ch, err := c.send(&sshfx.ReadPacket{
			Handle: handle,
			Offset: uint64(off) + uint64(n),
			Len:    uint32(chunk),
		})
		if err != nil {
			sem.Release(1)
			firstErr = err
			break
		}

		sent = append(sent, pending{ch: ch, start: n, chunk: chunk})
		n += chunk
	}

	outcomes := make([]outcome, len(sent))
	for i, s := range sent {
		r := <-s.ch
		sem.Release(1)

		if r.err != nil {
			outcomes[i] = outcome{err: r.err}
			continue
		}

		switch r.typ {
		case sshfx.PacketTypeData:
			var d sshfx.DataPacket
			unmarshalErr := d.UnmarshalPacketBody(r.body)
			if unmarshalErr == nil {
				copy(p[s.start:], d.Data)
			}
			connReleasePage(r)
			if unmarshalErr != nil {
				outcomes[i] = outcome{err: unmarshalErr}
				continue
			}
			outcomes[i] = outcome{data: d.Data, eof: len(d.Data) < s.chunk}
		case sshfx.PacketTypeStatus:
			err := statusResultError(r)
			if err == nil {
				err = io.EOF
			}
			outcomes[i] = outcome{err: err}
		default:
			connReleasePage(r)
			outcomes[i] = outcome{err: errors.Errorf("sftp: unexpected response %s", r.typ)}
		}
	}

	total := 0
	for _, o := range outcomes {
		if o.err != nil {
			return total, o.err
		}
		total += len(o.data)
		if o.eof {
			return total, io.EOF
		}
	}
	if firstErr != nil {
		return total, firstErr
	}
	return total, nil
}

// CopyFrom uploads the contents of src into the open file dst, starting at
// dst's current offset, pipelining WRITE requests.
func (f *File) CopyFrom(src io.Reader) (int64, error) {
	buf := make([]byte, transferConcurrency*maxMsgLength)

	var total int64
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			written, werr := f.WriteAt(buf[:n], f.offset)
			total += int64(written)
			f.offset += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// CopyTo downloads the remainder of the open file f into dst, starting at
// f's current offset. The read buffer spans transferConcurrency chunks so
// each Read call below fans out into that many pipelined READ requests
// (see ReadAt/pipelinedRead) instead of one chunk at a time.
func (f *File) CopyTo(dst io.Writer) (int64, error) {
	buf := make([]byte, transferConcurrency*maxMsgLength)

	var total int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, errors.Wrap(err, "sftp: download")
		}
	}
}

// startAppendOffset discovers the size to append at, since SFTP v3 has no
// portable append flag: the offset must be learned with an explicit FSTAT
// before the first write (§4.9).
func startAppendOffset(f *File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "sftp: fstat before append")
	}
	return fi.Size(), nil
}

// OpenAppend opens filePath for appending, discovering the starting offset
// via FSTAT since SFTP v3 carries no append flag with defined offset
// semantics across servers.
func (cl *Client) OpenAppend(filePath string) (*File, error) {
	f, err := cl.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
	if err != nil {
		return nil, err
	}

	off, err := startAppendOffset(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.offset = off

	return f, nil
}
