package redisgw

// Stream entry fields.
const (
	fieldType    = "type"           // "task" | "rpc"
	fieldName    = "name"           // job kind, always JobAnnotate for now
	fieldPayload = "payload"        // job encoded with the service codec
	fieldReplyTo = "reply_to"       // pub/sub channel for rpc replies
	fieldCorrID  = "correlation_id" // matches a reply to its request

	typTask = "task"
	typRPC  = "rpc"
)

// JobAnnotate names annotation jobs on the stream.
const JobAnnotate = "annotate"

// replyEnvelope is published to reply_to for every rpc entry.
type replyEnvelope struct {
	CorrelationID string `json:"correlation_id"`
	Body          []byte `json:"body"` // base64 in JSON
	Error         string `json:"error"`
}
