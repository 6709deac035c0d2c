package mconfig

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mercury-testing/perfcore/primitives"
)

// blobMagic is 'MERC' read little-endian, per the on-disk header format.
const blobMagic uint32 = 0x4D455243

// CurrentVersion is the only version this build writes, and the only one
// it accepts on load without an explicit migration step.
const CurrentVersion uint16 = 1

// maxPayloadBytes bounds config_size: a corrupt size field must fail fast
// rather than drive an enormous allocation.
const maxPayloadBytes = 64 * 1024

const blobHeaderSize = 4 + 2 + 2 + 4 + 4 // magic, version, flags, size, checksum

// rotateXORChecksum is the "rotate-left-1, XOR byte" checksum of the
// config blob's payload: an accumulator that rotates left by one bit and
// XORs in each payload byte in turn. (History journal entries use CRC32
// instead; see orchestrator/journal.go.)
func rotateXORChecksum(payload []byte) uint32 {
	var acc uint32
	for _, b := range payload {
		acc = (acc<<1 | acc>>31) ^ uint32(b)
	}
	return acc
}

// SaveBinaryConfiguration writes payload to path as a MERC-header blob:
// magic, version, flags, config_size, checksum, then payload verbatim.
// path must be non-empty; payload must not exceed maxPayloadBytes. The
// payload is written opaque: no schema is imposed or interpreted.
func SaveBinaryConfiguration(path string, payload []byte, flags uint16) error {
	if path == "" {
		err := primitives.WrapError(primitives.KindInvalidArgument, "path is required")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return err
	}
	if len(payload) > maxPayloadBytes {
		err := primitives.WrapError(primitives.KindInvalidArgument, "payload exceeds 64 KiB")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return err
	}

	buf := make([]byte, blobHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], blobMagic)
	binary.LittleEndian.PutUint16(buf[4:6], CurrentVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[12:16], rotateXORChecksum(payload))
	copy(buf[blobHeaderSize:], payload)

	f, err := openRegularNoFollow(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		werr := primitives.WrapError(primitives.KindIOError, fmt.Sprintf("write config: %v", err))
		primitives.SetError(primitives.KindIOError, werr.Error())
		return werr
	}
	return nil
}

// LoadBinaryConfiguration reads and validates a MERC-header blob at path,
// returning its opaque payload unchanged. Failure modes: missing/empty
// path, an unreadable or non-regular file, bad magic, an unsupported
// version, an implausible config_size, or a checksum mismatch — each is
// returned as an InvalidArgument, IOError (open/stat failure) or
// CorruptData error, never a panic.
func LoadBinaryConfiguration(path string) ([]byte, error) {
	if path == "" {
		err := primitives.WrapError(primitives.KindInvalidArgument, "path is required")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return nil, err
	}

	f, err := openRegularNoFollow(path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, blobHeaderSize)
	if _, err := readFull(f, header); err != nil {
		werr := primitives.WrapError(primitives.KindCorruptData, fmt.Sprintf("read config header: %v", err))
		primitives.SetError(primitives.KindCorruptData, werr.Error())
		return nil, werr
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	version := binary.LittleEndian.Uint16(header[4:6])
	size := binary.LittleEndian.Uint32(header[8:12])
	checksum := binary.LittleEndian.Uint32(header[12:16])

	if magic != blobMagic {
		err := primitives.WrapError(primitives.KindCorruptData, "config magic mismatch")
		primitives.SetError(primitives.KindCorruptData, err.Error())
		return nil, err
	}
	if version != CurrentVersion {
		err := primitives.WrapError(primitives.KindCorruptData, fmt.Sprintf("unsupported config version %d", version))
		primitives.SetError(primitives.KindCorruptData, err.Error())
		return nil, err
	}
	if size > maxPayloadBytes {
		err := primitives.WrapError(primitives.KindCorruptData, "config_size exceeds 64 KiB")
		primitives.SetError(primitives.KindCorruptData, err.Error())
		return nil, err
	}

	payload := make([]byte, size)
	if _, err := readFull(f, payload); err != nil {
		werr := primitives.WrapError(primitives.KindCorruptData, fmt.Sprintf("read config payload: %v", err))
		primitives.SetError(primitives.KindCorruptData, werr.Error())
		return nil, werr
	}

	if rotateXORChecksum(payload) != checksum {
		err := primitives.WrapError(primitives.KindCorruptData, "config checksum mismatch")
		primitives.SetError(primitives.KindCorruptData, err.Error())
		return nil, err
	}

	return payload, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total < len(buf) {
		return total, fmt.Errorf("short read: got %d of %d bytes", total, len(buf))
	}
	return total, nil
}

// openRegularNoFollow opens path, refusing to follow a symlink to a
// special (non-regular) file: if the path itself is a symlink it still
// opens normally (os.OpenFile follows one level, same
// as every other component in this core) but then rejects the result if
// the resolved file is not a regular file.
func openRegularNoFollow(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		werr := primitives.WrapError(primitives.KindIOError, fmt.Sprintf("open config: %v", err))
		primitives.SetError(primitives.KindIOError, werr.Error())
		return nil, werr
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		werr := primitives.WrapError(primitives.KindIOError, fmt.Sprintf("stat config: %v", err))
		primitives.SetError(primitives.KindIOError, werr.Error())
		return nil, werr
	}
	if !info.Mode().IsRegular() {
		f.Close()
		err := primitives.WrapError(primitives.KindInvalidArgument, "config path must be a regular file")
		primitives.SetError(primitives.KindInvalidArgument, err.Error())
		return nil, err
	}
	return f, nil
}
