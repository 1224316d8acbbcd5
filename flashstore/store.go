package flashstore

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrRegion is returned when the region does not describe at least two
	// whole pages inside the flash device.
	ErrRegion = errors.New("invalid flash region")
	// ErrTooLarge is returned when a value cannot fit in a single page.
	ErrTooLarge = errors.New("value too large for flash page")
	// ErrFull is returned when the live records do not fit in the region.
	ErrFull = errors.New("flash region full")
	// ErrCorrupt is returned when a record that was valid at mount no longer
	// passes its integrity check.
	ErrCorrupt = errors.New("corrupt flash record")
)

// Region is the byte range [Start, End) of a Flash device used by a Store.
type Region struct {
	Start    int64
	End      int64
	PageSize int64
}

// NumPages returns the number of pages in the region.
func (r Region) NumPages() int {
	return int((r.End - r.Start) / r.PageSize)
}

// Validate checks that the region is page aligned, holds at least two pages
// and fits in a device of the given size.
func (r Region) Validate(size int64) error {
	switch {
	case r.PageSize < pageHeaderSize+2*recordHeaderSize:
		return errors.Wrapf(ErrRegion, "page size %d too small", r.PageSize)
	case r.Start < 0 || r.Start%r.PageSize != 0:
		return errors.Wrapf(ErrRegion, "start %#x not aligned to %d", r.Start, r.PageSize)
	case r.End <= r.Start || (r.End-r.Start)%r.PageSize != 0:
		return errors.Wrapf(ErrRegion, "end %#x not aligned to %d", r.End, r.PageSize)
	case r.NumPages() < 2:
		return errors.Wrap(ErrRegion, "need at least two pages")
	case r.End > size:
		return errors.Wrapf(ErrRegion, "end %#x beyond device size %#x", r.End, size)
	default:
		return nil
	}
}

type page struct {
	used bool
	seq  uint32
	// end is the offset of the next record relative to the page start. It is
	// the page size once the page is full or closed by a damaged record.
	end int64
	// torn is set when a damaged record closed the page at mount.
	torn bool
}

type location struct {
	page int
	off  int64 // absolute offset of the record header
	n    int   // payload length
}

// Stats counts store activity since Open.
type Stats struct {
	Appends     int
	Compactions int
}

// Store is a log-structured key/value store over a flash region. Keys are
// single bytes; values are opaque byte slices.
//
// A Store is not safe for concurrent use. Callers sharing one must serialize
// access themselves.
type Store struct {
	flash  Flash
	region Region
	pages  []page
	active int // -1 until the first page is opened
	seq    uint32
	index  map[byte]location
	stats  Stats
}

// Open mounts the region of f. Pages with unrecognized headers are erased,
// and a region left without an erased page by an interrupted compaction is
// repaired before Open returns.
func Open(f Flash, r Region) (*Store, error) {
	if err := r.Validate(f.Size()); err != nil {
		return nil, err
	}

	s := &Store{
		flash:  f,
		region: r,
		pages:  make([]page, r.NumPages()),
		active: -1,
		index:  make(map[byte]location),
	}

	if err := s.mount(); err != nil {
		return nil, err
	}

	return s, nil
}

// Stats returns the activity counters.
func (s *Store) Stats() Stats { return s.stats }

// Fetch returns the most recent value stored for key. ok is false if the key
// has never been stored.
func (s *Store) Fetch(key byte) (value []byte, ok bool, err error) {
	loc, ok := s.index[key]
	if !ok {
		return nil, false, nil
	}

	rec, err := s.readRecord(loc)
	if err != nil {
		return nil, false, err
	}
	if rec[1] != key {
		return nil, false, errors.Wrapf(ErrCorrupt, "record at %#x has key %d, want %d", loc.off, rec[1], key)
	}

	return rec[recordHeaderSize:], true, nil
}

// Store appends value as the new most recent record for key.
func (s *Store) Store(key byte, value []byte) error {
	need := recordSize(len(value))
	if len(value) > math.MaxUint16 || need > s.region.PageSize-pageHeaderSize {
		return errors.Wrapf(ErrTooLarge, "%d bytes", len(value))
	}

	for attempt := 0; !s.fits(need); attempt++ {
		if attempt == len(s.pages) {
			return ErrFull
		}
		if err := s.rollover(); err != nil {
			return err
		}
	}

	return s.append(key, encodeRecord(key, value))
}

func (s *Store) pageOffset(i int) int64 {
	return s.region.Start + int64(i)*s.region.PageSize
}

func (s *Store) fits(n int64) bool {
	return s.active >= 0 && s.pages[s.active].end+n <= s.region.PageSize
}

func (s *Store) mount() error {
	hdr := make([]byte, pageHeaderSize)
	var used []int

	for i := range s.pages {
		if _, err := s.flash.ReadAt(hdr, s.pageOffset(i)); err != nil {
			return errors.Wrapf(err, "failed to read header of page %d", i)
		}

		switch {
		case isErased(hdr):
		case Endianness.Uint32(hdr) == pageMagic:
			s.pages[i] = page{used: true, seq: Endianness.Uint32(hdr[4:])}
			used = append(used, i)
		default:
			if err := s.erasePage(i); err != nil {
				return err
			}
		}
	}

	sort.Slice(used, func(a, b int) bool {
		return s.pages[used[a]].seq < s.pages[used[b]].seq
	})

	for _, i := range used {
		end, torn, err := s.scanPage(i, func(key byte, loc location) {
			s.index[key] = loc
		})
		if err != nil {
			return err
		}
		s.pages[i].end = end
		s.pages[i].torn = torn
		s.seq = s.pages[i].seq
		s.active = i
	}

	if len(used) < len(s.pages) {
		return nil
	}

	// No erased page left: a compaction into the newest page was cut off
	// before the oldest page was erased.
	newest := s.active
	if !s.pages[newest].torn {
		return s.reclaim(s.oldest())
	}

	// The copy itself was torn, so the oldest page was never touched and
	// still holds every record the newest page has. Drop the copy and mount
	// what is left; the next rollover redoes the compaction.
	if err := s.erasePage(newest); err != nil {
		return err
	}
	s.reset()
	return s.mount()
}

func (s *Store) reset() {
	for i := range s.pages {
		s.pages[i] = page{}
	}
	s.active = -1
	s.seq = 0
	s.index = make(map[byte]location)
}

// scanPage calls fn for every intact record in page i, oldest first, and
// returns the offset at which the next record may be written. torn reports
// that a damaged record closed the page.
func (s *Store) scanPage(i int, fn func(key byte, loc location)) (end int64, torn bool, err error) {
	base := s.pageOffset(i)
	size := s.region.PageSize
	hdr := make([]byte, recordHeaderSize)

	off := int64(pageHeaderSize)
	for off+recordHeaderSize <= size {
		if _, err := s.flash.ReadAt(hdr, base+off); err != nil {
			return 0, false, errors.Wrapf(err, "failed to read record at %#x", base+off)
		}
		if isErased(hdr) {
			return off, false, nil
		}

		n := int(Endianness.Uint16(hdr[2:]))
		if hdr[0] != recordMarker || off+recordHeaderSize+int64(n) > size {
			// Torn header. Nothing after it can be trusted or written.
			return size, true, nil
		}

		loc := location{page: i, off: base + off, n: n}
		rec, err := s.readRecord(loc)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				return size, true, nil
			}
			return 0, false, err
		}

		fn(rec[1], loc)
		off += recordSize(n)
	}

	return size, false, nil
}

func (s *Store) readRecord(loc location) ([]byte, error) {
	rec := make([]byte, recordHeaderSize+loc.n)
	if _, err := s.flash.ReadAt(rec, loc.off); err != nil {
		return nil, errors.Wrapf(err, "failed to read record at %#x", loc.off)
	}
	if rec[0] != recordMarker || Endianness.Uint32(rec[4:]) != recordChecksum(rec) {
		return nil, errors.Wrapf(ErrCorrupt, "record at %#x", loc.off)
	}
	return rec, nil
}

// append writes an encoded record to the active page. The caller must have
// checked that it fits.
func (s *Store) append(key byte, rec []byte) error {
	p := &s.pages[s.active]
	off := s.pageOffset(s.active) + p.end

	if _, err := s.flash.WriteAt(rec, off); err != nil {
		// The page may now hold a partial record.
		p.end = s.region.PageSize
		return errors.Wrapf(err, "failed to write record at %#x", off)
	}

	s.index[key] = location{page: s.active, off: off, n: len(rec) - recordHeaderSize}
	p.end += alignUp(int64(len(rec)))
	s.stats.Appends++
	return nil
}

// rollover opens the next erased page after the active one. If that leaves
// no erased page, the oldest page is compacted into the new active page.
func (s *Store) rollover() error {
	next := -1
	for d := 1; d <= len(s.pages); d++ {
		i := (s.active + d) % len(s.pages)
		if s.active < 0 {
			i = d - 1
		}
		if !s.pages[i].used {
			next = i
			break
		}
	}
	if next < 0 {
		return ErrFull
	}

	if err := s.openPage(next); err != nil {
		return err
	}

	for _, p := range s.pages {
		if !p.used {
			return nil
		}
	}
	return s.reclaim(s.oldest())
}

func (s *Store) openPage(i int) error {
	off := s.pageOffset(i)

	// An interrupted erase can leave data behind an erased header.
	buf := make([]byte, s.region.PageSize)
	if _, err := s.flash.ReadAt(buf, off); err != nil {
		return errors.Wrapf(err, "failed to read page %d", i)
	}
	if !isErased(buf) {
		if err := s.erasePage(i); err != nil {
			return err
		}
	}

	seq := s.seq + 1
	if _, err := s.flash.WriteAt(encodePageHeader(seq), off); err != nil {
		return errors.Wrapf(err, "failed to write header of page %d", i)
	}

	s.seq = seq
	s.pages[i] = page{used: true, seq: seq, end: pageHeaderSize}
	s.active = i
	return nil
}

// oldest returns the used page with the lowest sequence number other than
// the active page.
func (s *Store) oldest() int {
	oldest := -1
	for i, p := range s.pages {
		if !p.used || i == s.active {
			continue
		}
		if oldest < 0 || p.seq < s.pages[oldest].seq {
			oldest = i
		}
	}
	return oldest
}

// reclaim copies the records of page i that are still current into the
// active page, then erases page i.
func (s *Store) reclaim(i int) error {
	if i < 0 {
		return ErrFull
	}

	keys := make([]int, 0, len(s.index))
	for key, loc := range s.index {
		if loc.page == i {
			keys = append(keys, int(key))
		}
	}
	sort.Ints(keys)

	for _, k := range keys {
		key := byte(k)
		rec, err := s.readRecord(s.index[key])
		if err != nil {
			return err
		}
		if !s.fits(alignUp(int64(len(rec)))) {
			return errors.Wrapf(ErrFull, "compacting page %d", i)
		}
		if err := s.append(key, rec); err != nil {
			return err
		}
	}

	if err := s.erasePage(i); err != nil {
		return err
	}

	s.stats.Compactions++
	return nil
}

func (s *Store) erasePage(i int) error {
	if err := s.flash.Erase(s.pageOffset(i), s.region.PageSize); err != nil {
		return errors.Wrapf(err, "failed to erase page %d", i)
	}
	s.pages[i] = page{}
	return nil
}
