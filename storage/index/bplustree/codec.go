package bplustree

import (
	"cmp"
	"encoding/binary"

	"pagestore/types"
)

// KeyCodec gives a fixed-width on-page encoding for a key type, the Go
// equivalent of the original's pre-instantiated key widths {4,8,16,32,64}
// (spec §9 Design Notes — "Template Instantiations").
type KeyCodec[K cmp.Ordered] interface {
	Size() int
	Encode(buf []byte, k K)
	Decode(buf []byte) K
}

// ValueCodec gives a fixed-width on-page encoding for a leaf value type.
type ValueCodec[V any] interface {
	Size() int
	Encode(buf []byte, v V)
	Decode(buf []byte) V
}

// Int64KeyCodec is the default KeyCodec for int64 keys.
type Int64KeyCodec struct{}

func (Int64KeyCodec) Size() int { return 8 }
func (Int64KeyCodec) Encode(buf []byte, k int64) {
	binary.LittleEndian.PutUint64(buf, uint64(k))
}
func (Int64KeyCodec) Decode(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// RIDValueCodec is the default ValueCodec for leaf values that are
// record ids.
type RIDValueCodec struct{}

func (RIDValueCodec) Size() int { return 12 }
func (RIDValueCodec) Encode(buf []byte, v types.RID) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(v.PageID))
	binary.LittleEndian.PutUint32(buf[8:12], v.Slot)
}
func (RIDValueCodec) Decode(buf []byte) types.RID {
	return types.RID{
		PageID: types.PageID(binary.LittleEndian.Uint64(buf[0:8])),
		Slot:   binary.LittleEndian.Uint32(buf[8:12]),
	}
}
