package event

// Ops of a Frame on the WebSocket connection.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpEvent       = "event"
	OpSubscribed  = "subscribed"
	OpError       = "error"
)

// Frame is the unit on the WebSocket. Clients send subscribe and
// unsubscribe; the server answers with subscribed or error and pushes
// event frames carrying an Envelope.
type Frame struct {
	Op       string    `json:"op"`
	Topic    string    `json:"topic,omitempty"`
	Envelope *Envelope `json:"envelope,omitempty"`
	Error    string    `json:"error,omitempty"`
}
