package sftp

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/kr/fs"
	"github.com/pkg/errors"
)

// UploadDir recursively uploads the contents of localRoot into remoteRoot,
// creating remote directories as needed. Directories are created one at a
// time as the walk reaches them; file uploads (one sub-job per regular
// file) run concurrently, bounded by transferConcurrency. The first error
// from any mkdir or upload cancels the remaining ones and is returned once
// every in-flight upload has wound down (§4.9's composite upload-dir job).
func (cl *Client) UploadDir(ctx context.Context, localRoot, remoteRoot string) error {
	if err := cl.MkdirAll(remoteRoot); err != nil {
		return errors.Wrapf(err, "sftp: uploaddir: mkdir %q", remoteRoot)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		sem      = make(chan struct{}, transferConcurrency)
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	walker := fs.Walk(localRoot)
walkLoop:
	for walker.Step() {
		if err := walker.Err(); err != nil {
			fail(errors.Wrap(err, "sftp: uploaddir: walk"))
			break
		}

		select {
		case <-ctx.Done():
			break walkLoop
		default:
		}

		localPath := walker.Path()
		rel, err := filepath.Rel(localRoot, localPath)
		if err != nil {
			fail(err)
			break
		}
		remotePath := path.Join(remoteRoot, filepath.ToSlash(rel))

		info := walker.Stat()
		if rel == "." {
			continue
		}

		if info.IsDir() {
			if err := cl.Mkdir(remotePath); err != nil {
				fail(errors.Wrapf(err, "sftp: uploaddir: mkdir %q", remotePath))
			}
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		wg.Add(1)
		go func(localPath, remotePath string) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			if err := cl.uploadFile(localPath, remotePath); err != nil {
				fail(errors.Wrapf(err, "sftp: uploaddir: upload %q", remotePath))
			}
		}(localPath, remotePath)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

func (cl *Client) uploadFile(localPath, remotePath string) error {
	local, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	remote, err := cl.Create(remotePath)
	if err != nil {
		return err
	}
	defer remote.Close()

	if _, err := remote.CopyFrom(local); err != nil {
		return err
	}

	if fi, statErr := local.Stat(); statErr == nil {
		attrs := attributesFromFileInfo(fi)
		if perm := attrs.GetPermissions(); perm != 0 {
			if err := cl.Chmod(remotePath, perm.ToGoFileMode()); err != nil {
				return errors.Wrapf(err, "sftp: uploaddir: preserve mode on %q", remotePath)
			}
		}
	}

	return nil
}
