package worker

import (
	"context"

	"github.com/mrjvadi/go-lbbroker/codec"
)

// Context carries one job and helpers to decode it.
type Context struct {
	ctx      context.Context
	payload  []byte
	client   []byte
	workerID string
	codec    codec.Codec
}

// Bind decodes the payload into v with the worker's codec.
func (c *Context) Bind(v any) error {
	return c.codec.Unmarshal(c.payload, v)
}

// Encode marshals a reply with the same codec the job arrived in.
func (c *Context) Encode(v any) ([]byte, error) {
	return c.codec.Marshal(v)
}

func (c *Context) Ctx() context.Context { return c.ctx }

// Payload is the raw job body. It must not be modified.
func (c *Context) Payload() []byte { return c.payload }

func (c *Context) WorkerID() string { return c.workerID }

// Client is the routing address of the requester, opaque to the handler.
func (c *Context) Client() []byte { return c.client }

func (c *Context) Codec() codec.Codec { return c.codec }
