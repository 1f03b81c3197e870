package xdr

import "fmt"

// DecodeError reports truncated or malformed XDR input.
//
// Op names the item being decoded ("uint", "opaque", "list", ...) and Err
// carries the underlying cause, usually io.ErrUnexpectedEOF.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("xdr: decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(op string, err error) error {
	return &DecodeError{Op: op, Err: err}
}
