package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHeartbeat Action = "heartbeat"
	ActionCheat     Action = "cheat"
	ActionMessage   Action = "message"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// HeartbeatRequest is sent by the client to report liveness and progress.
type HeartbeatRequest struct {
	Action               Action `json:"action"`
	CurrentQuestionIndex *int   `json:"current_question_index"`
	AnsweredCount        *int   `json:"answered_count"`
}

// CheatRequest is sent by the client to report a suspicious event.
type CheatRequest struct {
	Action      Action `json:"action"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
	Metadata    string `json:"metadata"` // Receives the JSON string directly
}

// MessageRequest is sent by the client to post to its supervisor thread.
type MessageRequest struct {
	Action Action `json:"action"`
	Body   string `json:"body"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventKicked Event = "kicked"
	EventAck    Event = "ack"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// StateResponse carries the room snapshot after a heartbeat.
type StateResponse struct {
	Event         Event    `json:"event"`
	SessionStatus string   `json:"session_status"`
	TimeRemaining *float64 `json:"time_remaining,omitempty"`
}

// KickedResponse tells the client it has been removed from the room.
type KickedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

// AckResponse confirms a fire-and-forget action was accepted.
type AckResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
