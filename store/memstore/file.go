package memstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/store"
)

// record layout: tag(u16) node(u32) length(u32) bytes...

// Flush writes s's current committed snapshot to path in the format
// FileStore reads back. Tags and node ids are written in ascending order so
// the output is deterministic given the same snapshot contents.
func (s *Store) Flush(path string) error {
	snap := s.current()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	tags := make([]core.Tag, 0, len(snap.tags))
	for tag := range snap.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	var hdr [10]byte
	for _, tag := range tags {
		nodes := snap.tags[tag]
		ids := make([]core.NodeID, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			b := nodes[id]
			binary.LittleEndian.PutUint16(hdr[0:2], uint16(tag))
			binary.LittleEndian.PutUint32(hdr[2:6], uint32(id))
			binary.LittleEndian.PutUint32(hdr[6:10], uint32(len(b)))
			if _, err := w.Write(hdr[:]); err != nil {
				return err
			}
			if _, err := w.Write(b); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// FileStore is a read-only store.Store backed by a memory-mapped snapshot
// file produced by Store.Flush. Get returns zero-copy views into the
// mapping; no WriteTx is available.
type FileStore struct {
	m     mmap.MMap
	f     *os.File
	index map[store.Key][]byte
}

// OpenFile memory-maps path and indexes its records for lookup.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	fs := &FileStore{m: m, f: f, index: make(map[store.Key][]byte)}
	if err := fs.buildIndex(); err != nil {
		fs.Close()
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) buildIndex() error {
	b := []byte(fs.m)
	off := 0
	for off < len(b) {
		if off+10 > len(b) {
			return fmt.Errorf("memstore: truncated record header at offset %d", off)
		}
		tag := core.Tag(binary.LittleEndian.Uint16(b[off : off+2]))
		node := core.NodeID(binary.LittleEndian.Uint32(b[off+2 : off+6]))
		length := int(binary.LittleEndian.Uint32(b[off+6 : off+10]))
		off += 10
		if off+length > len(b) {
			return fmt.Errorf("memstore: truncated record body at offset %d", off)
		}
		fs.index[store.Key{Tag: tag, Node: node}] = b[off : off+length]
		off += length
	}
	return nil
}

func (fs *FileStore) BeginRead() store.ReadTx {
	return &fileReadTx{fs: fs}
}

func (fs *FileStore) BeginWrite() store.WriteTx {
	panic("memstore: FileStore is read-only")
}

func (fs *FileStore) Close() error {
	if fs.m != nil {
		if err := fs.m.Unmap(); err != nil {
			fs.f.Close()
			return err
		}
		fs.m = nil
	}
	return fs.f.Close()
}

type fileReadTx struct {
	fs *FileStore
}

func (t *fileReadTx) Get(key store.Key) ([]byte, bool) {
	b, ok := t.fs.index[key]
	return b, ok
}

func (t *fileReadTx) ScanInternal(tag core.Tag) iter.Seq2[core.NodeID, []byte] {
	return func(yield func(core.NodeID, []byte) bool) {
		for key, b := range t.fs.index {
			if key.Tag != tag || !key.Node.IsInternal() {
				continue
			}
			if !yield(key.Node, b) {
				return
			}
		}
	}
}

func (t *fileReadTx) Close() {}

var _ io.Closer = (*FileStore)(nil)
