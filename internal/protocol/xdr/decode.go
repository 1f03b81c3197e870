package xdr

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ============================================================================
// XDR Decoding - Wire Format → Go Values
// ============================================================================

// errInvalidDiscriminant is returned when a list discriminator is neither 0
// nor 1.
var errInvalidDiscriminant = errors.New("invalid list discriminant")

// Unpacker decodes XDR items from an in-memory buffer.
//
// Every Unpack* call either succeeds and advances the cursor past the item,
// or fails with a *DecodeError and leaves the cursor where it was. Callers
// therefore never observe a half-decoded value.
//
// An Unpacker is not safe for concurrent use.
type Unpacker struct {
	r   *bytes.Reader
	dec *xdr.Decoder
}

// NewUnpacker returns an Unpacker positioned at the start of data.
func NewUnpacker(data []byte) *Unpacker {
	u := &Unpacker{}
	u.Reset(data)
	return u
}

// Reset repositions the Unpacker at the start of data.
func (u *Unpacker) Reset(data []byte) {
	u.r = bytes.NewReader(data)
	u.dec = xdr.NewDecoder(u.r)
}

// Remaining returns the number of unread bytes.
func (u *Unpacker) Remaining() int {
	return u.r.Len()
}

// Done reports an error if any bytes are left unread.
func (u *Unpacker) Done() error {
	if n := u.r.Len(); n > 0 {
		return decodeError("done", fmt.Errorf("%d unread bytes", n))
	}
	return nil
}

// pos returns the current read offset.
func (u *Unpacker) pos() int64 {
	return u.r.Size() - int64(u.r.Len())
}

// rewind moves the cursor back to offset after a failed decode.
func (u *Unpacker) rewind(offset int64) {
	_, _ = u.r.Seek(offset, io.SeekStart)
}

// need fails with io.ErrUnexpectedEOF when fewer than n bytes remain.
func (u *Unpacker) need(op string, n int) error {
	if u.r.Len() < n {
		return decodeError(op, fmt.Errorf("need %d bytes, have %d: %w", n, u.r.Len(), io.ErrUnexpectedEOF))
	}
	return nil
}

// UnpackUint decodes a 32-bit unsigned integer.
func (u *Unpacker) UnpackUint() (uint32, error) {
	if err := u.need("uint", 4); err != nil {
		return 0, err
	}
	v, _, err := u.dec.DecodeUint()
	if err != nil {
		return 0, decodeError("uint", err)
	}
	return v, nil
}

// UnpackInt decodes a 32-bit signed integer.
func (u *Unpacker) UnpackInt() (int32, error) {
	if err := u.need("int", 4); err != nil {
		return 0, err
	}
	v, _, err := u.dec.DecodeInt()
	if err != nil {
		return 0, decodeError("int", err)
	}
	return v, nil
}

// UnpackBool decodes a boolean. Values other than 0 and 1 are rejected.
func (u *Unpacker) UnpackBool() (bool, error) {
	if err := u.need("bool", 4); err != nil {
		return false, err
	}
	start := u.pos()
	v, _, err := u.dec.DecodeBool()
	if err != nil {
		u.rewind(start)
		return false, decodeError("bool", err)
	}
	return v, nil
}

// UnpackEnum decodes an enumeration value without validating it; the caller
// checks it against the receiving enumeration.
func (u *Unpacker) UnpackEnum() (int32, error) {
	v, err := u.UnpackInt()
	if err != nil {
		return 0, decodeError("enum", errors.Unwrap(err))
	}
	return v, nil
}

// UnpackOpaque decodes variable-length opaque data.
//
// The declared length is checked against the bytes actually available
// before anything is allocated, so a corrupt length field cannot force a
// large allocation.
func (u *Unpacker) UnpackOpaque() ([]byte, error) {
	return u.unpackOpaque("opaque")
}

// UnpackString decodes a string (same wire format as opaque).
func (u *Unpacker) UnpackString() (string, error) {
	data, err := u.unpackOpaque("string")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (u *Unpacker) unpackOpaque(op string) ([]byte, error) {
	start := u.pos()

	length, err := u.UnpackUint()
	if err != nil {
		return nil, decodeError(op, errors.Unwrap(err))
	}

	padding := (4 - (length % 4)) % 4
	total := uint64(length) + uint64(padding)
	if total > uint64(u.r.Len()) {
		u.rewind(start)
		return nil, decodeError(op, fmt.Errorf("length %d exceeds %d remaining bytes: %w",
			length, u.r.Len(), io.ErrUnexpectedEOF))
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(u.r, data); err != nil {
		u.rewind(start)
		return nil, decodeError(op, err)
	}

	// Skip padding to 4-byte boundary
	if padding > 0 {
		if _, err := io.CopyN(io.Discard, u.r, int64(padding)); err != nil {
			u.rewind(start)
			return nil, decodeError(op, err)
		}
	}

	return data, nil
}

// UnpackStruct decodes into the struct pointed to by v using go-xdr
// reflection. On failure the cursor is restored, but fields of v may have
// been partially written; decode into a fresh value and copy it out on
// success.
//
// go-xdr allocates opaque, string and array fields at their declared length
// before checking what is left of the input. Do not use UnpackStruct on
// untrusted data with variable-length fields; decode those with
// UnpackOpaque and UnpackString, which check the length first.
func (u *Unpacker) UnpackStruct(v any) error {
	start := u.pos()
	if _, err := xdr.Unmarshal(u.r, v); err != nil {
		u.rewind(start)
		return decodeError(fmt.Sprintf("%T", v), err)
	}
	return nil
}

// UnpackList decodes an XDR optional-data linked list (see PackList).
//
// Items are collected in wire order. If any item or discriminator fails to
// decode, no items are returned and the cursor is restored to the start of
// the list.
func UnpackList[T any](u *Unpacker, unpack func(*Unpacker) (T, error)) ([]T, error) {
	start := u.pos()
	items := make([]T, 0)

	for {
		more, err := u.UnpackUint()
		if err != nil {
			u.rewind(start)
			return nil, decodeError("list", errors.Unwrap(err))
		}

		switch more {
		case 0:
			return items, nil
		case 1:
		default:
			u.rewind(start)
			return nil, decodeError("list", fmt.Errorf("%w: %d", errInvalidDiscriminant, more))
		}

		item, err := unpack(u)
		if err != nil {
			u.rewind(start)
			return nil, decodeError("list item", err)
		}
		items = append(items, item)
	}
}
