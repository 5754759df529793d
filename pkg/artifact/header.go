// Package artifact serializes compiled dictionaries and loads them back for lookups.
//
// An artifact is a fixed header followed by a body made of up to four sections: the
// trie, the entry table, the connection cost matrix and, for dictionaries built with
// char.def and unk.def, the unknown word table. The body may be zstd compressed and is
// always covered by an xxhash64 checksum.
package artifact

import (
	"encoding/binary"
	"fmt"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// Magic identifies artifact files.
const Magic = "DCTB"

// Format version written by this package. Loaders accept any minor version of their
// own major; a different major is rejected.
const (
	MajorVersion uint16 = 1
	MinorVersion uint16 = 1
)

// Header flags.
const (
	FlagZstd uint32 = 1 << iota

	knownFlags = FlagZstd
)

// headerSize is the encoded size of Header for this minor version. Newer minors may
// append fields; HeaderSize tells older readers how much to skip. Minor 0 headers end
// before UnknownLen.
const (
	headerSize       = 80
	minorZeroHdrSize = 72
)

// Header describes an artifact body.
type Header struct {
	Major      uint16
	Minor      uint16
	HeaderSize uint32
	Flags      uint32
	Entries    uint32
	Groups     uint32
	Rows       uint32
	Cols       uint32
	TrieLen    uint64
	EntriesLen uint64
	MatrixLen  uint64
	// StoredLen is the body size on disk, after compression.
	StoredLen uint64
	Checksum  uint64
	// UnknownLen is the size of the unknown word section, 0 when there is none.
	UnknownLen uint64
}

// Compressed reports whether the body is zstd compressed.
func (h Header) Compressed() bool { return h.Flags&FlagZstd != 0 }

func (h Header) bodyLen() uint64 { return h.TrieLen + h.EntriesLen + h.MatrixLen + h.UnknownLen }

func (h Header) append(buf []byte) []byte {
	le := binary.LittleEndian
	buf = append(buf, Magic...)
	buf = le.AppendUint16(buf, h.Major)
	buf = le.AppendUint16(buf, h.Minor)
	buf = le.AppendUint32(buf, h.HeaderSize)
	buf = le.AppendUint32(buf, h.Flags)
	buf = le.AppendUint32(buf, h.Entries)
	buf = le.AppendUint32(buf, h.Groups)
	buf = le.AppendUint32(buf, h.Rows)
	buf = le.AppendUint32(buf, h.Cols)
	buf = le.AppendUint64(buf, h.TrieLen)
	buf = le.AppendUint64(buf, h.EntriesLen)
	buf = le.AppendUint64(buf, h.MatrixLen)
	buf = le.AppendUint64(buf, h.StoredLen)
	buf = le.AppendUint64(buf, h.Checksum)
	buf = le.AppendUint64(buf, h.UnknownLen)
	return buf
}

// parseHeader decodes and negotiates the header at the start of data.
func parseHeader(data []byte) (Header, error) {
	if len(data) < 12 {
		return Header{}, dicterr.Corrupt("file too short for a header (%d bytes)", len(data))
	}
	if string(data[:4]) != Magic {
		return Header{}, dicterr.Version("bad magic %q: not a dictionary artifact", data[:4])
	}
	le := binary.LittleEndian
	h := Header{
		Major:      le.Uint16(data[4:]),
		Minor:      le.Uint16(data[6:]),
		HeaderSize: le.Uint32(data[8:]),
	}
	if h.Major != MajorVersion {
		return Header{}, dicterr.Version("artifact format %d.%d is not supported (want major %d)", h.Major, h.Minor, MajorVersion)
	}
	minSize := uint32(headerSize)
	if h.Minor == 0 {
		minSize = minorZeroHdrSize
	}
	if h.HeaderSize < minSize || uint64(h.HeaderSize) > uint64(len(data)) {
		return Header{}, dicterr.Corrupt("bad header size %d for format %d.%d", h.HeaderSize, h.Major, h.Minor)
	}
	p := data[12:]
	h.Flags = le.Uint32(p[0:])
	h.Entries = le.Uint32(p[4:])
	h.Groups = le.Uint32(p[8:])
	h.Rows = le.Uint32(p[12:])
	h.Cols = le.Uint32(p[16:])
	h.TrieLen = le.Uint64(p[20:])
	h.EntriesLen = le.Uint64(p[28:])
	h.MatrixLen = le.Uint64(p[36:])
	h.StoredLen = le.Uint64(p[44:])
	h.Checksum = le.Uint64(p[52:])
	if h.HeaderSize >= headerSize {
		h.UnknownLen = le.Uint64(p[60:])
	}
	if h.Flags&^knownFlags != 0 {
		return Header{}, dicterr.Version("artifact uses unknown flags %#x", h.Flags&^knownFlags)
	}
	return h, nil
}

func versionString(h Header) string { return fmt.Sprintf("%d.%d", h.Major, h.Minor) }
