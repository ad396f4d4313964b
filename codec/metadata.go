package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
)

// FormatVersion is the store-format version stamped into every metadata
// record. Readers refuse to open a snapshot written by a newer version.
const FormatVersion uint8 = 1

// Metadata is the fixed-key per-tag record from spec §6:
// [version:u8][metric:u8][D:u32][item_count:u64][seed:u64]..., followed by
// the Bachrach constant and root id list this repo's format adds.
type Metadata struct {
	Version   uint8
	Metric    distance.Metric
	Dimension uint32
	ItemCount uint64
	Seed      uint64
	Roots     []core.NodeID
	// BachrachM caches the Dot-product augmentation constant used by the
	// build whose roots this record names; zero for other metrics.
	BachrachM float32
}

// EncodeMetadata serializes m to its on-disk representation: a fixed header
// followed by the root id list.
func EncodeMetadata(m Metadata) []byte {
	buf := make([]byte, 1+1+4+8+8+4+4+len(m.Roots)*4)
	off := 0
	buf[off] = m.Version
	off++
	buf[off] = byte(m.Metric)
	off++
	binary.LittleEndian.PutUint32(buf[off:], m.Dimension)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], m.ItemCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.Seed)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(m.BachrachM))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.Roots)))
	off += 4
	for _, r := range m.Roots {
		binary.LittleEndian.PutUint32(buf[off:], uint32(r))
		off += 4
	}
	return buf
}

// DecodeMetadata parses a metadata record encoded by EncodeMetadata.
func DecodeMetadata(buf []byte) (Metadata, error) {
	const fixed = 1 + 1 + 4 + 8 + 8 + 4 + 4
	if len(buf) < fixed {
		return Metadata{}, fmt.Errorf("%w: metadata truncated (%d bytes)", ErrCorrupt, len(buf))
	}
	var m Metadata
	off := 0
	m.Version = buf[off]
	off++
	m.Metric = distance.Metric(buf[off])
	off++
	m.Dimension = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	m.ItemCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	m.Seed = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	m.BachrachM = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	nRoots := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if len(buf) != fixed+int(nRoots)*4 {
		return Metadata{}, fmt.Errorf("%w: metadata root list length mismatch", ErrCorrupt)
	}
	m.Roots = make([]core.NodeID, nRoots)
	for i := range m.Roots {
		m.Roots[i] = core.NodeID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return m, nil
}
