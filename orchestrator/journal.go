package orchestrator

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mercury-testing/perfcore/primitives"
)

// journalMagic identifies a history journal file ("HIST" as big-endian
// bytes), written little-endian per the on-disk header format.
const journalMagic uint32 = 0x48495354

// JournalVersion is the version this build writes and accepts without
// migration. Exported so a host can report it alongside file diagnostics.
const JournalVersion uint32 = 1

// Header layout: magic u32, version u32, entry_count u64, max_entries
// u64, next_offset u64.
const headerSize = 4 + 4 + 8 + 8 + 8

// Entry layout (packed, little-endian): timestamp u64, class[128],
// method[128], elapsed_ms f64, memory_mb f64, query_count u32,
// cache_ratio f64, score f64, grade[4], n_plus_one u8, severity u8,
// padding[2], crc32 u32.
const (
	entryClassBytes  = 128
	entryMethodBytes = 128
	entryGradeBytes  = 4
	entrySize        = 8 + entryClassBytes + entryMethodBytes + 8 + 8 + 4 + 8 + 8 + entryGradeBytes + 1 + 1 + 2 + 4
)

const defaultMaxEntries = 4096

// HistoryEntry is one finalized test context's record, written to and
// read back from the journal.
type HistoryEntry struct {
	Timestamp  int64
	ClassName  string
	MethodName string
	ElapsedMs  float64
	MemoryMb   float64
	QueryCount uint32
	CacheRatio float64
	Score      float64
	Grade      string
	NPlusOne   bool
	Severity   uint8
}

// Journal is a memory-mapped, append-only history file. Entries are
// appended under a mutex that also guards the occasional remap-to-grow
// step; reads scan the mapped region directly.
//
// On open, a header whose magic or version does not match, or whose
// recorded entry_count does not fit the file's actual size, is treated as
// corruption: the file is rotated aside with a ".corrupt-<unix-nanos>"
// suffix and a fresh journal is created in its place, rather than aborting
// the host process over a damaged history file. Entry checksums are not
// checked on open; QueryHistoryEntries skips any entry whose CRC32 does
// not match.
type Journal struct {
	mu         sync.Mutex
	file       *os.File
	data       []byte // mmap'd region, header + entries
	maxEntries uint64
}

// OpenJournal opens (creating if necessary) a history journal at path.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindIOError, fmt.Sprintf("open journal: %v", err))
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, primitives.WrapError(primitives.KindIOError, fmt.Sprintf("stat journal: %v", err))
	}

	if info.Size() == 0 {
		if err := initJournalFile(f, defaultMaxEntries); err != nil {
			f.Close()
			return nil, err
		}
	}

	j, err := mapJournal(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if !j.headerValid() {
		j.unmapLocked()
		f.Close()
		if rotErr := rotateCorruptFile(path); rotErr != nil {
			return nil, rotErr
		}
		return OpenJournal(path)
	}

	return j, nil
}

func rotateCorruptFile(path string) error {
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
	if err := os.Rename(path, dest); err != nil {
		return primitives.WrapError(primitives.KindIOError, fmt.Sprintf("rotate corrupt journal: %v", err))
	}
	return nil
}

func initJournalFile(f *os.File, maxEntries uint64) error {
	size := int64(headerSize) + int64(maxEntries)*int64(entrySize)
	if err := f.Truncate(size); err != nil {
		return primitives.WrapError(primitives.KindIOError, fmt.Sprintf("truncate journal: %v", err))
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], journalMagic)
	binary.LittleEndian.PutUint32(header[4:8], JournalVersion)
	binary.LittleEndian.PutUint64(header[8:16], 0) // entry_count
	binary.LittleEndian.PutUint64(header[16:24], maxEntries)
	binary.LittleEndian.PutUint64(header[24:32], headerSize) // next_offset

	if _, err := f.WriteAt(header, 0); err != nil {
		return primitives.WrapError(primitives.KindIOError, fmt.Sprintf("write journal header: %v", err))
	}
	return nil
}

func mapJournal(f *os.File) (*Journal, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, primitives.WrapError(primitives.KindIOError, fmt.Sprintf("stat journal: %v", err))
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, primitives.WrapError(primitives.KindIOError, fmt.Sprintf("mmap journal: %v", err))
	}

	j := &Journal{file: f, data: data}
	j.maxEntries = binary.LittleEndian.Uint64(data[16:24])
	return j, nil
}

func (j *Journal) headerValid() bool {
	if len(j.data) < headerSize {
		return false
	}
	magic := binary.LittleEndian.Uint32(j.data[0:4])
	version := binary.LittleEndian.Uint32(j.data[4:8])
	entryCount := binary.LittleEndian.Uint64(j.data[8:16])
	if magic != journalMagic || version != JournalVersion {
		return false
	}
	return int64(headerSize)+int64(entryCount)*int64(entrySize) <= int64(len(j.data))
}

func (j *Journal) entryCount() uint64 {
	return binary.LittleEndian.Uint64(j.data[8:16])
}

func (j *Journal) setEntryCount(n uint64) {
	binary.LittleEndian.PutUint64(j.data[8:16], n)
	binary.LittleEndian.PutUint64(j.data[24:32], uint64(headerSize)+n*uint64(entrySize))
}

// Append reserves the next entry slot, growing (and remapping) the file
// if the table is full, writes entry with a trailing CRC32 checksum, and
// advances the entry count. Append holds Journal's mutex for its
// duration: growth is rare and this is not a hot path.
func (j *Journal) Append(entry HistoryEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.entryCount() >= j.maxEntries {
		if err := j.growLocked(); err != nil {
			return err
		}
	}

	idx := j.entryCount()
	offset := headerSize + int(idx)*entrySize
	buf := j.data[offset : offset+entrySize]
	encodeEntry(buf, entry)

	j.setEntryCount(idx + 1)
	return unix.Msync(j.data, unix.MS_ASYNC)
}

// growLocked doubles the journal's entry capacity: unmap, truncate, remap.
// Called with j.mu already held.
func (j *Journal) growLocked() error {
	newMax := j.maxEntries * 2
	if newMax == 0 {
		newMax = defaultMaxEntries
	}
	newSize := int64(headerSize) + int64(newMax)*int64(entrySize)

	if err := unix.Munmap(j.data); err != nil {
		return primitives.WrapError(primitives.KindIOError, fmt.Sprintf("munmap for grow: %v", err))
	}
	if err := j.file.Truncate(newSize); err != nil {
		return primitives.WrapError(primitives.KindIOError, fmt.Sprintf("truncate for grow: %v", err))
	}

	data, err := unix.Mmap(int(j.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return primitives.WrapError(primitives.KindIOError, fmt.Sprintf("remap after grow: %v", err))
	}
	j.data = data
	j.maxEntries = newMax
	binary.LittleEndian.PutUint64(j.data[16:24], newMax)
	return nil
}

func encodeEntry(buf []byte, e HistoryEntry) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Timestamp))
	off := 8
	copy(buf[off:off+entryClassBytes], primitives.TruncateCopy(e.ClassName, entryClassBytes-1))
	off += entryClassBytes
	copy(buf[off:off+entryMethodBytes], primitives.TruncateCopy(e.MethodName, entryMethodBytes-1))
	off += entryMethodBytes
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(e.ElapsedMs))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(e.MemoryMb))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], e.QueryCount)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(e.CacheRatio))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(e.Score))
	off += 8
	copy(buf[off:off+entryGradeBytes], primitives.TruncateCopy(e.Grade, entryGradeBytes-1))
	off += entryGradeBytes
	if e.NPlusOne {
		buf[off] = 1
	}
	off++
	buf[off] = e.Severity
	off++
	off += 2 // padding

	checksum := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], checksum)
}

func decodeEntry(buf []byte) (HistoryEntry, bool) {
	crcOffset := entrySize - 4
	wantCRC := binary.LittleEndian.Uint32(buf[crcOffset : crcOffset+4])
	gotCRC := crc32.ChecksumIEEE(buf[:crcOffset])
	if wantCRC != gotCRC {
		return HistoryEntry{}, false
	}

	timestamp := int64(binary.LittleEndian.Uint64(buf[0:8]))
	off := 8
	class := cStringFromBytes(buf[off : off+entryClassBytes])
	off += entryClassBytes
	method := cStringFromBytes(buf[off : off+entryMethodBytes])
	off += entryMethodBytes
	elapsedMs := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	memoryMb := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	queryCount := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	cacheRatio := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	score := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	grade := cStringFromBytes(buf[off : off+entryGradeBytes])
	off += entryGradeBytes
	nPlusOne := buf[off] != 0
	off++
	severity := buf[off]

	return HistoryEntry{
		Timestamp:  timestamp,
		ClassName:  class,
		MethodName: method,
		ElapsedMs:  elapsedMs,
		MemoryMb:   memoryMb,
		QueryCount: queryCount,
		CacheRatio: cacheRatio,
		Score:      score,
		Grade:      grade,
		NPlusOne:   nPlusOne,
		Severity:   severity,
	}, true
}

func cStringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// QueryHistoryEntries returns every valid entry currently in the journal
// for which filter returns true (nil matches everything). Entries that
// fail their checksum are silently skipped rather than aborting the scan
// — a single damaged record must not hide the rest of the history.
func (j *Journal) QueryHistoryEntries(filter func(HistoryEntry) bool) []HistoryEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := j.entryCount()
	out := make([]HistoryEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		offset := headerSize + int(i)*entrySize
		entry, ok := decodeEntry(j.data[offset : offset+entrySize])
		if !ok {
			continue
		}
		if filter == nil || filter(entry) {
			out = append(out, entry)
		}
	}
	return out
}

func (j *Journal) unmapLocked() {
	if j.data != nil {
		_ = unix.Munmap(j.data)
		j.data = nil
	}
}

// Close unmaps and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.unmapLocked()
	return j.file.Close()
}
