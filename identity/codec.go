package identity

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// CurrentSchemaVersion is the binary layout written by [BinaryCodec].
	CurrentSchemaVersion = 1
)

var (
	// ErrCorruptEncoding is returned when a stored identity blob cannot be decoded.
	ErrCorruptEncoding = errors.New("corrupt identity encoding")
	// ErrUnsupportedVersion is returned for blobs written by an unknown schema version.
	ErrUnsupportedVersion = errors.New("unsupported identity schema version")
)

// Codec turns an Identity into bytes for a session store or distributed cache
// and back. Decode(Encode(x)) must be Equal to x.
type Codec interface {
	Encode(ident Identity) ([]byte, error)
	Decode(data []byte) (*User, error)
}

// BinaryCodec is a compact, versioned binary layout:
//
//	version:u8 | id:str | count:uvarint | (name:str value)*
//	str   = len:uvarint bytes
//	value = kind:u8 payload
//
// Attributes are written in name order so equal identities encode to equal bytes.
type BinaryCodec struct{}

// JSONCodec stores identities as {"id": ..., "attributes": {...}}.
type JSONCodec struct{}

var (
	_ Codec = BinaryCodec{}
	_ Codec = JSONCodec{}
)

// Encode implements Codec.
func (BinaryCodec) Encode(ident Identity) ([]byte, error) {
	if ident == nil || ident.ID() == "" {
		return nil, ErrEmptyID
	}

	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)
	writeString(&buf, ident.ID())

	names := sortedNames(ident)
	writeUvarint(&buf, uint64(len(names)))
	for _, name := range names {
		v, ok := ident.Property(name)
		if !ok {
			return nil, fmt.Errorf("attribute %q listed but absent", name)
		}
		writeString(&buf, name)
		if err := writeValue(&buf, v, 0); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
	}

	return buf.Bytes(), nil
}

// Decode implements Codec.
func (BinaryCodec) Decode(data []byte) (*User, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	id, err := readString(reader)
	if err != nil {
		return nil, err
	}

	count, err := readLength(reader)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]Value, count)
	for i := 0; i < count; i++ {
		name, err := readString(reader)
		if err != nil {
			return nil, err
		}
		if _, dup := attrs[name]; dup {
			return nil, fmt.Errorf("%w: duplicate attribute %q", ErrCorruptEncoding, name)
		}
		v, err := readValue(reader, 0)
		if err != nil {
			return nil, err
		}
		attrs[name] = v
	}

	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptEncoding, reader.Len())
	}

	u, err := New(id, attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	return u, nil
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	size := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:size])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeValue(buf *bytes.Buffer, v Value, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}

	buf.WriteByte(byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindString, KindNumber:
		writeString(buf, v.text)
	case KindBool:
		if v.b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindList:
		writeUvarint(buf, uint64(len(v.list)))
		for _, item := range v.list {
			if err := writeValue(buf, item, depth+1); err != nil {
				return err
			}
		}
	case KindObject:
		keys := sortedKeys(v.obj)
		writeUvarint(buf, uint64(len(keys)))
		for _, k := range keys {
			writeString(buf, k)
			if err := writeValue(buf, v.obj[k], depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot encode %s", v.kind)
	}
	return nil
}

// readLength reads a uvarint count and rejects values that could not possibly
// fit in the remaining input, so corrupt blobs cannot force huge allocations.
func readLength(reader *bytes.Reader) (int, error) {
	n, err := binary.ReadUvarint(reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	if n > uint64(reader.Len()) {
		return 0, fmt.Errorf("%w: length %d exceeds input", ErrCorruptEncoding, n)
	}
	return int(n), nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := readLength(reader)
	if err != nil {
		return "", err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(reader, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	return string(data), nil
}

func readValue(reader *bytes.Reader, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, fmt.Errorf("%w: %v", ErrCorruptEncoding, ErrTooDeep)
	}

	tag, err := reader.ReadByte()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}

	switch Kind(tag) {
	case KindNull:
		return Null(), nil
	case KindString:
		s, err := readString(reader)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindNumber:
		s, err := readString(reader)
		if err != nil {
			return Value{}, err
		}
		v, err := Number(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
		}
		return v, nil
	case KindBool:
		b, err := reader.ReadByte()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
		}
		if b > 1 {
			return Value{}, fmt.Errorf("%w: bool byte %d", ErrCorruptEncoding, b)
		}
		return Bool(b == 1), nil
	case KindList:
		n, err := readLength(reader)
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, n)
		for i := range items {
			if items[i], err = readValue(reader, depth+1); err != nil {
				return Value{}, err
			}
		}
		return Value{kind: KindList, list: items}, nil
	case KindObject:
		n, err := readLength(reader)
		if err != nil {
			return Value{}, err
		}
		fields := make(map[string]Value, n)
		for i := 0; i < n; i++ {
			k, err := readString(reader)
			if err != nil {
				return Value{}, err
			}
			if _, dup := fields[k]; dup {
				return Value{}, fmt.Errorf("%w: duplicate field %q", ErrCorruptEncoding, k)
			}
			if fields[k], err = readValue(reader, depth+1); err != nil {
				return Value{}, err
			}
		}
		return Value{kind: KindObject, obj: fields}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown value kind %d", ErrCorruptEncoding, tag)
	}
}

type jsonIdentity struct {
	ID         string           `json:"id"`
	Attributes map[string]Value `json:"attributes"`
}

func marshalJSONIdentity(ident Identity) ([]byte, error) {
	names := ident.PropertyNames()
	wire := jsonIdentity{
		ID:         ident.ID(),
		Attributes: make(map[string]Value, len(names)),
	}
	for _, name := range names {
		if v, ok := ident.Property(name); ok {
			wire.Attributes[name] = v
		}
	}
	return json.Marshal(wire)
}

// Encode implements Codec.
func (JSONCodec) Encode(ident Identity) ([]byte, error) {
	if ident == nil || ident.ID() == "" {
		return nil, ErrEmptyID
	}
	return marshalJSONIdentity(ident)
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (*User, error) {
	var wire jsonIdentity
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	u, err := New(wire.ID, wire.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEncoding, err)
	}
	return u, nil
}

// CodecByName resolves the codec names accepted in configuration.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "binary":
		return BinaryCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown identity codec %q", name)
	}
}
