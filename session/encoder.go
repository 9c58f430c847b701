package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

// Encode serializes s into the versioned binary layout stored in Redis.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.Identity) > 65535 {
		return nil, errors.New("identity too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Identity))); err != nil {
		return nil, err
	}
	buf.WriteString(s.Identity)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by [Encode]. SessionID is not part of the payload.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("unsupported session version")
	}

	userLen, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(r, userID); err != nil {
		return nil, err
	}

	var identityLen uint16
	if err := binary.Read(r, binary.BigEndian, &identityLen); err != nil {
		return nil, err
	}
	identity := make([]byte, identityLen)
	if _, err := io.ReadFull(r, identity); err != nil {
		return nil, err
	}

	s := &Session{
		UserID:   string(userID),
		Identity: string(identity),
	}
	if err := binary.Read(r, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}
