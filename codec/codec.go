// Package codec implements the on-disk node layout from spec §4.2: a fixed
// 4-byte header (discriminant, metric, reserved padding) followed by a
// variant body laid out as little-endian integers and IEEE-754 floats. A
// decoded node's vector fields are zero-copy views into the caller-supplied
// buffer, the same projection a memory-mapped slice reader uses; mutating
// a node always produces a fresh encoded buffer rather than writing through
// the view.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
)

// Kind is the 1-byte node discriminant.
type Kind uint8

const (
	KindItem        Kind = 0x01
	KindSplit       Kind = 0x02
	KindDescendants Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindSplit:
		return "split"
	case KindDescendants:
		return "descendants"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(k))
	}
}

const headerSize = 4

// ErrCorrupt is returned when a buffer is too short or structurally
// inconsistent for the kind/metric it claims to hold.
var ErrCorrupt = errors.New("codec: corrupt node")

// hasNormTrailer reports whether an item node for m carries a cached L2 norm
// after its vector (Cosine needs it to normalize, Dot needs it for the
// Bachrach augmentation; Euclidean/Manhattan need nothing extra).
func hasNormTrailer(m distance.Metric) bool {
	return m == distance.Cosine || m == distance.Dot
}

// PeekHeader reads the discriminant and metric without validating the body,
// letting callers dispatch to the right Decode* function.
func PeekHeader(buf []byte) (Kind, distance.Metric, error) {
	if len(buf) < headerSize {
		return 0, 0, fmt.Errorf("%w: header truncated (%d bytes)", ErrCorrupt, len(buf))
	}
	return Kind(buf[0]), distance.Metric(buf[1]), nil
}

func putHeader(buf []byte, kind Kind, metric distance.Metric) {
	buf[0] = byte(kind)
	buf[1] = byte(metric)
	buf[2] = 0
	buf[3] = 0
}

// EncodeItem serializes an item node: header, stored vector, and (for
// Cosine/Dot) a trailing cached norm.
func EncodeItem(metric distance.Metric, vector []float32, norm float32) []byte {
	trailer := 0
	if hasNormTrailer(metric) {
		trailer = 4
	}
	buf := make([]byte, headerSize+len(vector)*4+trailer)
	putHeader(buf, KindItem, metric)
	putFloat32Slice(buf[headerSize:], vector)
	if trailer > 0 {
		binary.LittleEndian.PutUint32(buf[len(buf)-4:], math.Float32bits(norm))
	}
	return buf
}

// DecodeItem parses an item node encoded by EncodeItem. The returned vector
// is a zero-copy view into buf.
func DecodeItem(buf []byte, metric distance.Metric, dim int) (vector []float32, norm float32, err error) {
	kind, gotMetric, err := PeekHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	if kind != KindItem {
		return nil, 0, fmt.Errorf("%w: expected item, got %v", ErrCorrupt, kind)
	}
	if gotMetric != metric {
		return nil, 0, fmt.Errorf("%w: metric mismatch (node has %v, want %v)", ErrCorrupt, gotMetric, metric)
	}
	trailer := 0
	if hasNormTrailer(metric) {
		trailer = 4
	}
	want := headerSize + dim*4 + trailer
	if len(buf) != want {
		return nil, 0, fmt.Errorf("%w: item body length %d, want %d", ErrCorrupt, len(buf), want)
	}
	vector = float32SliceView(buf[headerSize : headerSize+dim*4])
	if trailer > 0 {
		norm = math.Float32frombits(binary.LittleEndian.Uint32(buf[len(buf)-4:]))
	}
	return vector, norm, nil
}

// EncodeSplit serializes a split node: header, normal vector, bias, and two
// child node ids.
func EncodeSplit(metric distance.Metric, normal []float32, bias float32, left, right core.NodeID) []byte {
	buf := make([]byte, headerSize+len(normal)*4+4+4+4)
	putHeader(buf, KindSplit, metric)
	off := headerSize
	putFloat32Slice(buf[off:], normal)
	off += len(normal) * 4
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(bias))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(left))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(right))
	return buf
}

// DecodeSplit parses a split node encoded by EncodeSplit. The returned
// normal is a zero-copy view into buf.
func DecodeSplit(buf []byte, metric distance.Metric, workingDim int) (normal []float32, bias float32, left, right core.NodeID, err error) {
	kind, gotMetric, err := PeekHeader(buf)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	if kind != KindSplit {
		return nil, 0, 0, 0, fmt.Errorf("%w: expected split, got %v", ErrCorrupt, kind)
	}
	if gotMetric != metric {
		return nil, 0, 0, 0, fmt.Errorf("%w: metric mismatch (node has %v, want %v)", ErrCorrupt, gotMetric, metric)
	}
	want := headerSize + workingDim*4 + 4 + 4 + 4
	if len(buf) != want {
		return nil, 0, 0, 0, fmt.Errorf("%w: split body length %d, want %d", ErrCorrupt, len(buf), want)
	}
	off := headerSize
	normal = float32SliceView(buf[off : off+workingDim*4])
	off += workingDim * 4
	bias = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	left = core.NodeID(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	right = core.NodeID(binary.LittleEndian.Uint32(buf[off:]))
	return normal, bias, left, right, nil
}

// EncodeDescendants serializes a descendants node: header, item count, and
// the Roaring-compressed id set.
func EncodeDescendants(metric distance.Metric, ids *itemset.Set) ([]byte, error) {
	rb, err := ids.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize+4+len(rb))
	putHeader(buf, KindDescendants, metric)
	binary.LittleEndian.PutUint32(buf[headerSize:], uint32(ids.Cardinality()))
	copy(buf[headerSize+4:], rb)
	return buf, nil
}

// DecodeDescendants parses a descendants node encoded by EncodeDescendants.
func DecodeDescendants(buf []byte, metric distance.Metric) (*itemset.Set, error) {
	kind, gotMetric, err := PeekHeader(buf)
	if err != nil {
		return nil, err
	}
	if kind != KindDescendants {
		return nil, fmt.Errorf("%w: expected descendants, got %v", ErrCorrupt, kind)
	}
	if gotMetric != metric {
		return nil, fmt.Errorf("%w: metric mismatch (node has %v, want %v)", ErrCorrupt, gotMetric, metric)
	}
	if len(buf) < headerSize+4 {
		return nil, fmt.Errorf("%w: descendants header truncated", ErrCorrupt)
	}
	count := binary.LittleEndian.Uint32(buf[headerSize:])
	set := itemset.New()
	if err := set.UnmarshalBinary(buf[headerSize+4:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint32(set.Cardinality()) != count {
		return nil, fmt.Errorf("%w: descendants count %d, bitmap has %d", ErrCorrupt, count, set.Cardinality())
	}
	return set, nil
}

func putFloat32Slice(dst []byte, src []float32) {
	for i, f := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

// float32SliceView reinterprets a little-endian byte slice as a []float32
// without copying. On big-endian platforms this would need a byte swap; the
// pack's teacher targets little-endian deployment only (same assumption its
// mmap slice reader makes).
func float32SliceView(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

