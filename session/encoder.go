package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	recordFormatVersionCurrent = 1

	maxIdentityLength = 255
)

// Encode serializes r into the compact binary layout stored in Redis:
//
//	version(1) | len(identity)(1) | identity | tokenHash(32) | issuedAt ms(8) | expiresAt ms(8)
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if r.Identity == "" {
		return nil, errors.New("identity required")
	}
	if len(r.Identity) > maxIdentityLength {
		return nil, errors.New("identity too long")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(r.Identity) + 32 + 16)

	buf.WriteByte(recordFormatVersionCurrent)
	buf.WriteByte(byte(len(r.Identity)))
	buf.WriteString(r.Identity)
	buf.Write(r.TokenHash[:])

	if err := binary.Write(&buf, binary.BigEndian, r.IssuedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by [Encode].
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid record version")
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if idLen == 0 {
		return nil, errors.New("empty identity")
	}
	identity := make([]byte, idLen)
	if _, err := io.ReadFull(reader, identity); err != nil {
		return nil, err
	}

	r := &Record{Identity: string(identity)}
	if _, err := io.ReadFull(reader, r.TokenHash[:]); err != nil {
		return nil, err
	}

	var issuedAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in record")
	}

	r.IssuedAt = time.UnixMilli(issuedAt)
	r.ExpiresAt = time.UnixMilli(expiresAt)
	return r, nil
}
