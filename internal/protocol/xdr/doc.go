// Package xdr implements the XDR (RFC 4506) primitives shared by every
// message of the RPC client: fixed-width integers, booleans, enumerations,
// variable-length opaque data and strings, and the optional-data linked list
// used by port mapper DUMP replies.
//
// Encoding goes through Packer, decoding through Unpacker. Both operate on
// in-memory buffers; framing on the wire is the job of the rpc package.
package xdr
