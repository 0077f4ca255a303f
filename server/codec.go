package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecName is the Connect codec name; requests travel as application/cbor.
const CodecName = "cbor"

var codecEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	codecEncMode = em
}

// cborCodec carries the plain Go messages in this package over Connect
// without generated protobuf types.
type cborCodec struct{}

func (cborCodec) Name() string { return CodecName }

func (cborCodec) Marshal(msg any) ([]byte, error) {
	return codecEncMode.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte, msg any) error {
	return cbor.Unmarshal(data, msg)
}
