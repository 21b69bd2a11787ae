// Package codec encodes and decodes job payloads. The broker never touches
// payloads; workers and gateways agree on one codec by name.
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Codec marshals job mappings to bytes and back.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps codec names to codecs.
type Registry struct{ byName map[string]Codec }

// NewRegistry returns a registry with json, msgpack, cbor and protobuf.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(MsgPack())
	r.Register(CBOR())
	r.Register(Proto())
	return r
}

func (r *Registry) Register(c Codec) { r.byName[c.Name()] = c }

// Get returns the codec registered under name.
func (r *Registry) Get(name string) (Codec, error) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return c, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Lookup finds a built-in codec by name.
func Lookup(name string) (Codec, error) { return defaultRegistry.Get(name) }
