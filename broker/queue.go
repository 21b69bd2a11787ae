package broker

// readyQueue holds the identities of idle workers, oldest first.
// An identity is queued at most once.
type readyQueue struct {
	ids    [][]byte
	queued map[string]struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{queued: make(map[string]struct{})}
}

func (q *readyQueue) Len() int { return len(q.ids) }

// Push appends id and reports false when it is already queued.
func (q *readyQueue) Push(id []byte) bool {
	key := string(id)
	if _, ok := q.queued[key]; ok {
		return false
	}
	q.queued[key] = struct{}{}
	q.ids = append(q.ids, append([]byte(nil), id...))
	return true
}

// Pop removes the worker that has been idle the longest.
func (q *readyQueue) Pop() ([]byte, bool) {
	if len(q.ids) == 0 {
		return nil, false
	}
	id := q.ids[0]
	q.ids[0] = nil
	q.ids = q.ids[1:]
	delete(q.queued, string(id))
	return id, true
}

func (q *readyQueue) Snapshot() []string {
	out := make([]string, len(q.ids))
	for i, id := range q.ids {
		out[i] = string(id)
	}
	return out
}
