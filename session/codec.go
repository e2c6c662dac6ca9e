package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	formatVersionCurrent = 2
	formatVersionV1      = 1
)

var errStringTooLong = errors.New("session field too long")

// Encode serializes s into the current (v2) binary format. The token is not
// part of the blob; the Redis key carries it.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(formatVersionCurrent)

	for _, field := range []string{s.Provider, s.Subject, s.Email, s.Name, s.IP, s.UserAgent} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastSeenAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a v1 or v2 blob. v1 predates the LastSeenAt field; decoded
// v1 sessions report CreatedAt as their last-seen time.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != formatVersionCurrent && version != formatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	for _, dst := range []*string{&s.Provider, &s.Subject, &s.Email, &s.Name, &s.IP, &s.UserAgent} {
		value, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*dst = value
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	if version == formatVersionCurrent {
		if err := binary.Read(reader, binary.BigEndian, &s.LastSeenAt); err != nil {
			return nil, err
		}
	} else {
		s.LastSeenAt = s.CreatedAt
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, value string) error {
	if len(value) > math.MaxUint16 {
		return errStringTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(value))); err != nil {
		return err
	}
	buf.WriteString(value)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
