// Package codec wraps the wire JSON encoder the RPC envelope and
// Object.Data use. A tiny interface seam, mirroring the teacher pack's
// serializer abstraction, keeps the choice of JSON library out of the
// Dispatcher and wsrpc packages.
package codec

import "github.com/bytedance/sonic"

// Codec abstracts "object <-> bytes" so a caller never imports sonic
// directly.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the sonic-backed Codec used throughout this module.
type JSON struct{}

var _ Codec = JSON{}

// Marshal encodes v as JSON using sonic's default, fast-path API.
func (JSON) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// Unmarshal decodes data into v using sonic.
func (JSON) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
