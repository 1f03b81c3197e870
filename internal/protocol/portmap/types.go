package portmap

import (
	"fmt"

	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// Mapping is a port mapper registration entry.
//
// Wire format (RFC 1833):
//
//	struct mapping {
//	    unsigned int prog;
//	    unsigned int vers;
//	    unsigned int prot;
//	    unsigned int port;
//	};
//
// The same shape is the argument of SET, UNSET and GETPORT, and the item
// type of the DUMP list.
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol Protocol
	Port     uint32
}

func (m Mapping) String() string {
	return fmt.Sprintf("program=%d version=%d protocol=%s port=%d",
		m.Program, m.Version, m.Protocol, m.Port)
}

// PackMapping encodes m.
func PackMapping(p *xdr.Packer, m Mapping) {
	p.PackStruct(&m)
}

// UnpackMapping decodes a Mapping.
func UnpackMapping(u *xdr.Unpacker) (Mapping, error) {
	var m Mapping
	if err := u.UnpackStruct(&m); err != nil {
		return Mapping{}, err
	}
	return m, nil
}

// CallArgs is the argument of CALLIT.
//
//	struct call_args {
//	    unsigned int prog;
//	    unsigned int vers;
//	    unsigned int proc;
//	    opaque args<>;
//	};
type CallArgs struct {
	Program   uint32
	Version   uint32
	Procedure uint32
	Args      []byte
}

// CallResult is the result of CALLIT: the port of the called program and
// its encoded result.
//
//	struct call_result {
//	    unsigned int port;
//	    opaque res<>;
//	};
type CallResult struct {
	Port   uint32
	Result []byte
}

// PackCallResult encodes a CALLIT result.
func PackCallResult(p *xdr.Packer, res CallResult) {
	p.PackUint(res.Port)
	p.PackOpaque(res.Result)
}

// UnpackCallResult decodes a CALLIT result. The result length is checked
// against the reply before it is allocated.
func UnpackCallResult(u *xdr.Unpacker) (CallResult, error) {
	port, err := u.UnpackUint()
	if err != nil {
		return CallResult{}, err
	}
	result, err := u.UnpackOpaque()
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Port: port, Result: result}, nil
}
