package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
)

// ParseError is the fatal "snapshot parse failure" of spec section 7:
// reported with the file name and the byte offset decoding failed at.
type ParseError struct {
	File   string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("snapshot: parse failure in %s at byte offset %d: %v", e.File, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Wire field numbers for the frozen schema of spec section 6:
//
//	message Snapshot { repeated Object objects = 1; repeated Root roots = 2; }
//	message Object   { fixed64 address = 1; uint32 size = 2; uint32 class_id = 3; repeated fixed64 references = 4; }
//	message Root     { fixed64 address = 1; }
const (
	fieldSnapshotObjects = 1
	fieldSnapshotRoots   = 2

	fieldObjectAddress    = 1
	fieldObjectSize       = 2
	fieldObjectClassID    = 3
	fieldObjectReferences = 4

	fieldRootAddress = 1
)

// Load reads a zstd-compressed, protobuf-encoded heap snapshot from
// path and decodes it under the given ObjectModel. The protobuf
// schema is small and frozen (spec section 6), so this reads the wire
// format directly via protowire rather than generating a .pb.go.
func Load(path string, model ObjectModel) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{File: path, Offset: 0, Err: err}
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, &ParseError{File: path, Offset: 0, Err: fmt.Errorf("zstd: %w", err)}
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, &ParseError{File: path, Offset: 0, Err: fmt.Errorf("zstd decompress: %w", err)}
	}

	return Decode(raw, model, path)
}

// Decode parses an already-decompressed protobuf snapshot buffer.
func Decode(data []byte, model ObjectModel, sourceName string) (*Snapshot, error) {
	var objects []*Object
	var roots []addr.Virtual

	offset := 0
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &ParseError{File: sourceName, Offset: offset, Err: protowire.ParseError(n)}
		}
		b = b[n:]
		offset += n

		switch num {
		case fieldSnapshotObjects:
			msg, n, err := consumeBytes(b, sourceName, offset)
			if err != nil {
				return nil, err
			}
			obj, err := decodeObject(msg, model, sourceName, offset)
			if err != nil {
				return nil, err
			}
			objects = append(objects, obj)
			b = b[n:]
			offset += n

		case fieldSnapshotRoots:
			msg, n, err := consumeBytes(b, sourceName, offset)
			if err != nil {
				return nil, err
			}
			root, err := decodeRoot(msg, sourceName, offset)
			if err != nil {
				return nil, err
			}
			roots = append(roots, root)
			b = b[n:]
			offset += n

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, &ParseError{File: sourceName, Offset: offset, Err: protowire.ParseError(n)}
			}
			b = b[n:]
			offset += n
		}
	}

	return New(model, objects, roots), nil
}

func consumeBytes(b []byte, file string, offset int) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
	}
	return v, n, nil
}

func decodeObject(b []byte, model ObjectModel, file string, baseOffset int) (*Object, error) {
	obj := &Object{}
	var forwardRefs, backRefs []addr.Virtual

	offset := baseOffset
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
		}
		b = b[n:]
		offset += n

		switch num {
		case fieldObjectAddress:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
			}
			obj.Address = addr.Virtual(v)
			b, offset = b[n:], offset+n

		case fieldObjectSize:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
			}
			obj.SizeBytes = uint32(v)
			b, offset = b[n:], offset+n

		case fieldObjectClassID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
			}
			obj.ClassID = uint32(v)
			b, offset = b[n:], offset+n

		case fieldObjectReferences:
			refs, n, err := consumeRepeatedFixed64(b, typ, file, offset)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				forwardRefs = append(forwardRefs, addr.Virtual(r))
			}
			b, offset = b[n:], offset+n

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
			}
			b, offset = b[n:], offset+n
		}
	}

	obj.References = forwardRefs
	if model == Bidirectional {
		// Every forward slot gets a paired back-reference slot pointing
		// at the owning object, per spec section 6's --object-model
		// note; Scan never visits these (spec section 4.9).
		backRefs = make([]addr.Virtual, len(forwardRefs))
		for i := range backRefs {
			backRefs[i] = obj.Address
		}
		obj.BackReferences = backRefs
	}
	return obj, nil
}

// consumeRepeatedFixed64 handles both protobuf's packed-repeated
// encoding (a single length-delimited field of concatenated fixed64
// values) and the unpacked form (one Fixed64-typed field per value),
// per spec section 6's "repeated fixed64 ... (or repeated slot
// offsets)" schema note.
func consumeRepeatedFixed64(b []byte, typ protowire.Type, file string, offset int) ([]uint64, int, error) {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
		}
		var vals []uint64
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			if m < 0 {
				return nil, 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(m)}
			}
			vals = append(vals, v)
			packed = packed[m:]
		}
		return vals, n, nil
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return nil, 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
	}
	return []uint64{v}, n, nil
}

func decodeRoot(b []byte, file string, baseOffset int) (addr.Virtual, error) {
	offset := baseOffset
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
		}
		b = b[n:]
		offset += n

		if num == fieldRootAddress {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
			}
			return addr.Virtual(v), nil
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, &ParseError{File: file, Offset: offset, Err: protowire.ParseError(n)}
		}
		b, offset = b[n:], offset+n
	}
	return 0, &ParseError{File: file, Offset: offset, Err: fmt.Errorf("root message missing address field")}
}
