package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const codeRecordVersionV1 = 1

const flagConsumed byte = 1 << 0

var (
	ErrCodeNotFound         = errors.New("code record not found")
	ErrCodeExpired          = errors.New("code record expired")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeConsumed         = errors.New("code already consumed")
	ErrCodeStoreUnavailable = errors.New("code store unavailable")
)

// CodeRecord is the persisted form of a one-time code. Only the SHA-256 of
// the code is stored.
type CodeRecord struct {
	IdentityID string
	Purpose    string
	CodeHash   [32]byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Consumed   bool
}

// CodeStore keeps at most one record per (identity, purpose).
type CodeStore interface {
	// Put replaces any record for the same identity and purpose.
	Put(ctx context.Context, record *CodeRecord, now time.Time) error
	// Consume atomically tests hash against the active record and marks it
	// consumed on a match. An expired record is deleted before returning
	// ErrCodeExpired. A mismatch leaves the record untouched.
	Consume(ctx context.Context, identityID, purpose string, hash [32]byte, now time.Time) (*CodeRecord, error)
	// Delete removes the record for identity and purpose.
	Delete(ctx context.Context, identityID, purpose string) error
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	if len(record.IdentityID) > 0xffff || len(record.Purpose) > 0xff {
		return nil, errors.New("code record field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)

	var flags byte
	if record.Consumed {
		flags |= flagConsumed
	}
	buf.WriteByte(flags)

	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(record.IssuedAt.UnixMilli()))
	buf.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(record.ExpiresAt.UnixMilli()))
	buf.Write(scratch[:])

	binary.BigEndian.PutUint16(scratch[:2], uint16(len(record.IdentityID)))
	buf.Write(scratch[:2])
	buf.WriteString(record.IdentityID)

	buf.WriteByte(byte(len(record.Purpose)))
	buf.WriteString(record.Purpose)

	buf.Write(record.CodeHash[:])
	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var issued, expires int64
	if err := binary.Read(r, binary.BigEndian, &issued); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &expires); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(r, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return nil, err
	}

	purposeLen, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	purpose := make([]byte, purposeLen)
	if _, err := io.ReadFull(r, purpose); err != nil {
		return nil, err
	}

	record := &CodeRecord{
		IdentityID: string(id),
		Purpose:    string(purpose),
		IssuedAt:   time.UnixMilli(issued),
		ExpiresAt:  time.UnixMilli(expires),
		Consumed:   flags&flagConsumed != 0,
	}
	if _, err := io.ReadFull(r, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing bytes in code record")
	}
	return record, nil
}
