package flashstore

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
)

// FileFlash is a flash image backed by a regular file. It lets the host
// daemon keep its state in the same layout the device uses.
type FileFlash struct {
	f    *os.File
	size int64
}

var _ Flash = (*FileFlash)(nil)

// OpenFileFlash opens the flash image at path, creating it filled with
// Erased bytes if it does not exist. An existing image smaller than size is
// extended with Erased bytes.
func OpenFileFlash(path string, size int64) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open flash image")
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to stat flash image")
	}

	if st.Size() < size {
		fill := bytes.Repeat([]byte{Erased}, int(size-st.Size()))
		if _, err := f.WriteAt(fill, st.Size()); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "failed to extend flash image")
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "failed to sync flash image")
		}
	}

	return &FileFlash{f: f, size: size}, nil
}

// Close closes the underlying file.
func (f *FileFlash) Close() error {
	return f.f.Close()
}

func (f *FileFlash) Size() int64 { return f.size }

func (f *FileFlash) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

func (f *FileFlash) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, f.f.Sync()
}

func (f *FileFlash) Erase(off, n int64) error {
	if _, err := f.f.WriteAt(bytes.Repeat([]byte{Erased}, int(n)), off); err != nil {
		return err
	}
	return f.f.Sync()
}
