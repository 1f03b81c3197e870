package xdr

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ============================================================================
// XDR Encoding - Go Values → Wire Format
// ============================================================================

// Packer serializes values into an in-memory XDR buffer.
//
// Per RFC 4506 every item occupies a multiple of 4 bytes, big-endian.
// Fixed-width primitives go through the go-xdr encoder; variable-length
// items are padded with zero bytes up to the next 4-byte boundary.
//
// Writes to the underlying buffer cannot fail, so the Pack* methods do not
// return errors. The only fallible operation is PackStruct, which reflects
// over arbitrary Go values; its first error is kept and reported by Err.
//
// A Packer is not safe for concurrent use.
type Packer struct {
	buf bytes.Buffer
	enc *xdr.Encoder
	err error
}

// NewPacker returns an empty Packer.
func NewPacker() *Packer {
	p := &Packer{}
	p.enc = xdr.NewEncoder(&p.buf)
	return p
}

// Reset discards the buffered bytes and any recorded error so the Packer
// can be reused for the next message.
func (p *Packer) Reset() {
	p.buf.Reset()
	p.err = nil
}

// Bytes returns the encoded bytes. The slice aliases the internal buffer
// and is only valid until the next Pack* or Reset call.
func (p *Packer) Bytes() []byte {
	return p.buf.Bytes()
}

// Len returns the number of bytes encoded so far.
func (p *Packer) Len() int {
	return p.buf.Len()
}

// Err returns the first error recorded by PackStruct, if any.
func (p *Packer) Err() error {
	return p.err
}

// PackUint encodes a 32-bit unsigned integer.
func (p *Packer) PackUint(v uint32) {
	_, _ = p.enc.EncodeUint(v)
}

// PackInt encodes a 32-bit signed integer (two's complement).
func (p *Packer) PackInt(v int32) {
	_, _ = p.enc.EncodeInt(v)
}

// PackBool encodes a boolean as 0 or 1 in a 4-byte field.
func (p *Packer) PackBool(v bool) {
	_, _ = p.enc.EncodeBool(v)
}

// PackEnum encodes an enumeration value. The wire representation is the
// same as a signed integer; the receiver validates the value.
func (p *Packer) PackEnum(v int32) {
	p.PackInt(v)
}

// PackOpaque encodes variable-length opaque data.
//
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
func (p *Packer) PackOpaque(data []byte) {
	length := uint32(len(data))
	p.PackUint(length)
	p.buf.Write(data)

	// Example: length=3 → padding=1, length=8 → padding=0
	padding := (4 - (length % 4)) % 4
	for range padding {
		p.buf.WriteByte(0)
	}
}

// PackString encodes a string. Strings share the opaque wire format.
func (p *Packer) PackString(s string) {
	length := uint32(len(s))
	p.PackUint(length)
	p.buf.WriteString(s)

	padding := (4 - (length % 4)) % 4
	for range padding {
		p.buf.WriteByte(0)
	}
}

// PackStruct encodes v field by field using go-xdr reflection.
//
// Only types with a fixed XDR mapping should be passed here: int32,
// uint32, bool, string, []byte and nested structs of those.
func (p *Packer) PackStruct(v any) {
	if p.err != nil {
		return
	}
	if _, err := xdr.Marshal(&p.buf, v); err != nil {
		p.err = fmt.Errorf("marshal %T: %w", v, err)
	}
}

// PackList encodes items as an XDR optional-data linked list.
//
// Wire format:
//
//	For each item:
//	  value_follows: uint32(1)
//	  item:          pack(item)
//	After the last item:
//	  value_follows: uint32(0)
//
// An empty list produces just uint32(0).
func PackList[T any](p *Packer, items []T, pack func(*Packer, T)) {
	for _, item := range items {
		p.PackUint(1)
		pack(p, item)
	}
	p.PackUint(0)
}
