package broker

import "errors"

// ReadyMarker is the body a worker sends once, right after connecting.
const ReadyMarker = "READY"

var ErrRunning = errors.New("broker: already running")

// Stats is a point-in-time view of the dispatch counters.
type Stats struct {
	Ready      int    // idle workers in the readiness queue
	Dispatched uint64 // jobs forwarded to a worker
	Replied    uint64 // replies forwarded to a client
	Dropped    uint64 // malformed or unroutable envelopes
}

func isDelimiter(frame []byte) bool { return len(frame) == 0 }
