package eventlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// codecMajorVersion is written as the first byte of every encoded event.
// A reader encountering a higher major version must reject it outright
// (spec §6: "a reader rejecting an unknown major version is correct").
const codecMajorVersion uint8 = 1

// ErrUnknownVersion is returned by Decode when the leading version byte
// does not match a version this codec understands.
var ErrUnknownVersion = fmt.Errorf("eventlog: unknown codec major version")

// Encode serializes e as `[version][variant_tag][payload]`, where payload
// is a sequence of length-prefixed fields in a fixed order per variant.
// The format round-trips exactly: Decode(Encode(e)) == e for every variant.
func Encode(e Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecMajorVersion)
	buf.WriteByte(byte(e.Type))

	writeBytes(&buf, e.Input)
	writeString(&buf, e.WorkflowID)
	writeString(&buf, e.WorkflowType)
	writeString(&buf, e.ActivityID)
	writeString(&buf, e.ActivityType)
	writeBytes(&buf, e.ActivityIn)
	writeBytes(&buf, e.Output)
	writeInt64(&buf, e.DurationMS)
	writeString(&buf, e.Error)
	writeBool(&buf, e.Retryable)
	writeBytes(&buf, e.StateBytes)
	writeBytes(&buf, e.FinalOutput)
	writeInt64(&buf, e.Timestamp.UnixNano())

	return buf.Bytes(), nil
}

// Decode parses the output of Encode back into an Event.
func Decode(data []byte) (Event, error) {
	var e Event
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return e, fmt.Errorf("eventlog: truncated event: %w", err)
	}
	if version != codecMajorVersion {
		return e, fmt.Errorf("%w: got %d, want %d", ErrUnknownVersion, version, codecMajorVersion)
	}

	tag, err := r.ReadByte()
	if err != nil {
		return e, fmt.Errorf("eventlog: truncated event: %w", err)
	}
	e.Type = EventType(tag)

	if e.Input, err = readBytes(r); err != nil {
		return e, err
	}
	if e.WorkflowID, err = readString(r); err != nil {
		return e, err
	}
	if e.WorkflowType, err = readString(r); err != nil {
		return e, err
	}
	if e.ActivityID, err = readString(r); err != nil {
		return e, err
	}
	if e.ActivityType, err = readString(r); err != nil {
		return e, err
	}
	if e.ActivityIn, err = readBytes(r); err != nil {
		return e, err
	}
	if e.Output, err = readBytes(r); err != nil {
		return e, err
	}
	if e.DurationMS, err = readInt64(r); err != nil {
		return e, err
	}
	if e.Error, err = readString(r); err != nil {
		return e, err
	}
	if e.Retryable, err = readBool(r); err != nil {
		return e, err
	}
	if e.StateBytes, err = readBytes(r); err != nil {
		return e, err
	}
	if e.FinalOutput, err = readBytes(r); err != nil {
		return e, err
	}
	nanos, err := readInt64(r)
	if err != nil {
		return e, err
	}
	e.Timestamp = time.Unix(0, nanos).UTC()

	return e, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b))) // #nosec G115 -- payload sizes fit uint32 in practice
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)) // #nosec G115 -- reinterpreting bits, not truncating
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil // #nosec G115 -- reinterpreting bits, not truncating
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("eventlog: truncated event: %w", err)
	}
	return b != 0, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, fmt.Errorf("eventlog: truncated event: %w", err)
	}
	if n != len(buf) {
		return n, fmt.Errorf("eventlog: truncated event: wanted %d bytes, got %d", len(buf), n)
	}
	return n, nil
}
