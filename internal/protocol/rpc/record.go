package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ============================================================================
// TCP Record Marking (RFC 5531 Section 11)
// ============================================================================
//
// On a stream transport every RPC message is sent as a record made of one
// or more fragments. Each fragment starts with a 4-byte big-endian header:
//
//	Bit 31:    last fragment flag (1 = this fragment completes the record)
//	Bits 0-30: fragment payload length in bytes

// fragmentHeader is the decoded 4-byte fragment header.
type fragmentHeader struct {
	IsLast bool
	Length uint32
}

// readFragmentHeader reads the 4-byte RPC fragment header.
func readFragmentHeader(r io.Reader) (fragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fragmentHeader{}, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return fragmentHeader{
		IsLast: (header & lastFragmentFlag) != 0,
		Length: header & fragmentLengthMask,
	}, nil
}

// WriteRecord sends record as one or more fragments.
//
// maxFragment bounds the payload of a single fragment; values <= 0 (or
// larger than the 31-bit length field allows) send the record in as few
// fragments as the header permits. Only the final fragment carries the
// last-fragment flag. An empty record is sent as a single empty last
// fragment.
//
// Short writes are retried until every byte is accepted or the writer
// reports an error.
func WriteRecord(w io.Writer, record []byte, maxFragment int) error {
	if maxFragment <= 0 || maxFragment > fragmentLengthMask {
		maxFragment = fragmentLengthMask
	}

	var hdr [4]byte
	for {
		n := min(len(record), maxFragment)
		chunk := record[:n]
		record = record[n:]

		header := uint32(n)
		if len(record) == 0 {
			header |= lastFragmentFlag
		}
		binary.BigEndian.PutUint32(hdr[:], header)

		if err := writeFull(w, hdr[:]); err != nil {
			return fmt.Errorf("write fragment header: %w", err)
		}
		if err := writeFull(w, chunk); err != nil {
			return fmt.Errorf("write fragment payload: %w", err)
		}

		if len(record) == 0 {
			return nil
		}
	}
}

// writeFull loops until all of p has been written.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// ReadRecord reads fragments until one carries the last-fragment flag and
// returns the concatenation of their payloads.
//
// A stream that ends before a complete header or payload has been read
// yields *ConnectionClosedError. A record whose accumulated size would
// exceed maxRecord (if > 0) fails with ErrRecordTooLarge before the
// oversized payload is read.
func ReadRecord(r io.Reader, maxRecord int) ([]byte, error) {
	var record []byte

	for {
		header, err := readFragmentHeader(r)
		if err != nil {
			return nil, closedOr(err)
		}

		if maxRecord > 0 && uint64(len(record))+uint64(header.Length) > uint64(maxRecord) {
			return nil, fmt.Errorf("%w: %d bytes (limit %d)",
				ErrRecordTooLarge, uint64(len(record))+uint64(header.Length), maxRecord)
		}

		start := len(record)
		record = append(record, make([]byte, header.Length)...)
		if _, err := io.ReadFull(r, record[start:]); err != nil {
			return nil, closedOr(err)
		}

		if header.IsLast {
			return record, nil
		}
	}
}

// closedOr maps end-of-stream conditions to *ConnectionClosedError and
// passes every other error through.
func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ConnectionClosedError{Err: err}
	}
	return err
}
