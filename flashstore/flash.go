// Package flashstore implements a small append-only key/value store over a
// fixed byte range of NOR flash.
//
// Records are appended to the active page. Superseded records become garbage
// that is reclaimed when the store runs out of erased pages: the live records
// of the oldest page are copied forward and the page is erased. Erases thus
// rotate across every page in the region.
package flashstore

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Erased is the value of every byte of an erased flash page.
const Erased = 0xFF

// Flash is a byte-addressable NOR flash device. Writes may only clear bits;
// setting bits back to one requires an erase.
type Flash interface {
	io.ReaderAt
	io.WriterAt
	// Erase resets n bytes starting at off to Erased. Both must be aligned to
	// the page size used by the store.
	Erase(off, n int64) error
	// Size returns the size of the device in bytes.
	Size() int64
}

// ErrNotErased is returned by MemFlash when a write would need to set a bit
// that is currently cleared.
var ErrNotErased = errors.New("write to non-erased flash")

// MemFlash is an in-memory flash device that enforces NOR write semantics.
// It is safe for concurrent use.
type MemFlash struct {
	mu       sync.Mutex
	data     []byte
	pageSize int64
	erases   []int
	writes   int
	failErr  error
}

var _ Flash = (*MemFlash)(nil)

// NewMemFlash creates an erased in-memory flash device. pageSize is only used
// for erase accounting.
func NewMemFlash(size, pageSize int64) *MemFlash {
	data := make([]byte, size)
	for i := range data {
		data[i] = Erased
	}
	return &MemFlash{
		data:     data,
		pageSize: pageSize,
		erases:   make([]int, (size+pageSize-1)/pageSize),
	}
}

// Fail makes every following read, write and erase return err. A nil err
// restores normal operation.
func (m *MemFlash) Fail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Writes returns the number of successful WriteAt calls.
func (m *MemFlash) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// EraseCounts returns the number of erases each page has seen.
func (m *MemFlash) EraseCounts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.erases...)
}

// Corrupt flips the given bits at off, bypassing write semantics. It is
// meant for simulating torn writes and bit rot.
func (m *MemFlash) Corrupt(off int64, mask byte) {
	m.mu.Lock()
	m.data[off] ^= mask
	m.mu.Unlock()
}

func (m *MemFlash) Size() int64 { return int64(len(m.data)) }

func (m *MemFlash) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return 0, m.failErr
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrUnexpectedEOF
	}
	return copy(p, m.data[off:]), nil
}

func (m *MemFlash) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return 0, m.failErr
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrShortWrite
	}
	for i, b := range p {
		if m.data[off+int64(i)]&b != b {
			return 0, errors.Wrapf(ErrNotErased, "offset %#x", off+int64(i))
		}
	}
	for i, b := range p {
		m.data[off+int64(i)] &= b
	}
	m.writes++
	return len(p), nil
}

func (m *MemFlash) Erase(off, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	if off%m.pageSize != 0 || n%m.pageSize != 0 || off < 0 || off+n > int64(len(m.data)) {
		return errors.Errorf("unaligned erase of %d bytes at %#x", n, off)
	}
	for i := off; i < off+n; i++ {
		m.data[i] = Erased
	}
	for p := off / m.pageSize; p < (off+n)/m.pageSize; p++ {
		m.erases[p]++
	}
	return nil
}
