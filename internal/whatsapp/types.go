package whatsapp

import "time"

// State is a coarse connection state reported by the protocol client.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DisconnectReason classifies why a connection closed. It is data on a state
// transition, not an error; the supervisor's policy table decides what to do
// with it.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	ReasonLoggedOut
	ReasonBadSession
	ReasonConnectionClosed
	ReasonConnectionLost
	ReasonConnectionReplaced
	ReasonRestartRequired
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonBadSession:
		return "bad_session"
	case ReasonConnectionClosed:
		return "connection_closed"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonRestartRequired:
		return "restart_required"
	default:
		return "unknown"
	}
}

// Update is one normalized connection-state transition. QR is set when a QR
// challenge is emitted during pairing; Reason is valid only for StateClosed.
type Update struct {
	State  State
	QR     string
	Reason DisconnectReason
	Err    error
}

// Bus topics for inbound events fanned out to the command dispatcher.
const (
	TopicMessage     = "whatsapp:message"
	TopicGroupUpdate = "whatsapp:group.update"
)

// InboundMessage is a decoded inbound message from an established connection,
// published on the event bus for the dispatcher.
type InboundMessage struct {
	Number    string
	Session   Session
	Chat      string
	Sender    string
	ID        string
	Text      string
	Timestamp time.Time
	IsGroup   bool
	IsStatus  bool
	FromSelf  bool
}

// GroupUpdate reports participants joining or leaving a group chat.
type GroupUpdate struct {
	Number  string
	Session Session
	Chat    string
	Joined  []string
	Left    []string
}
