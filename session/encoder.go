package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/goSSO/identity"
)

// CurrentSchemaVersion is the record format written by Encode.
const CurrentSchemaVersion = 1

const (
	codecTagBinary byte = 1
	codecTagJSON   byte = 2

	maxIdentityBlob = 1 << 20
)

// ErrInvalidRecord is returned by Decode for blobs it cannot interpret.
var ErrInvalidRecord = errors.New("invalid session record")

func codecTag(codec identity.Codec) (byte, error) {
	switch codec.(type) {
	case identity.BinaryCodec, *identity.BinaryCodec:
		return codecTagBinary, nil
	case identity.JSONCodec, *identity.JSONCodec:
		return codecTagJSON, nil
	default:
		return 0, fmt.Errorf("unsupported identity codec %T", codec)
	}
}

func codecForTag(tag byte) (identity.Codec, error) {
	switch tag {
	case codecTagBinary:
		return identity.BinaryCodec{}, nil
	case codecTagJSON:
		return identity.JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec tag %d", ErrInvalidRecord, tag)
	}
}

// Encode writes s in the current record format, encoding its identity with codec.
func Encode(s *Session, codec identity.Codec) ([]byte, error) {
	if s == nil || s.Identity == nil {
		return nil, errors.New("session has no identity")
	}
	tag, err := codecTag(codec)
	if err != nil {
		return nil, err
	}

	blob, err := codec.Encode(s.Identity)
	if err != nil {
		return nil, err
	}
	if len(blob) > maxIdentityBlob {
		return nil, errors.New("identity too large")
	}

	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)
	buf.WriteByte(tag)

	if len(s.Provider) > 255 {
		return nil, errors.New("provider name too long")
	}
	buf.WriteByte(byte(len(s.Provider)))
	buf.WriteString(s.Provider)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(blob))); err != nil {
		return nil, err
	}
	buf.Write(blob)

	return buf.Bytes(), nil
}

// Decode parses a record written by Encode. The session ID is not part of the
// record and is left empty.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrInvalidRecord, version)
	}

	tag, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	codec, err := codecForTag(tag)
	if err != nil {
		return nil, err
	}

	s := &Session{}

	providerLen, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	provider := make([]byte, providerLen)
	if _, err := io.ReadFull(reader, provider); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	s.Provider = string(provider)

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var blobLen uint32
	if err := binary.Read(reader, binary.BigEndian, &blobLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if int64(blobLen) != int64(reader.Len()) {
		return nil, fmt.Errorf("%w: identity length mismatch", ErrInvalidRecord)
	}
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(reader, blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	ident, err := codec.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	s.Identity = ident

	return s, nil
}
