package worker

// HandlerFunc turns one job into its reply body.
type HandlerFunc func(c *Context) ([]byte, error)

// FailureFunc builds the reply sent when a handler fails or panics.
type FailureFunc func(err error) []byte
