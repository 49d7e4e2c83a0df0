package types

import "time"

// EventKind tags an audit record's role in the session's trace.
type EventKind string

const (
	EventSessionStart    EventKind = "SESSION_START"
	EventStateTransition EventKind = "STATE_TRANSITION"
	EventModelRequest    EventKind = "MODEL_REQUEST"
	EventModelResponse   EventKind = "MODEL_RESPONSE"
	EventToolCall        EventKind = "TOOL_CALL"
	EventToolResult      EventKind = "TOOL_RESULT"
	EventBudgetCheck     EventKind = "BUDGET_CHECK"
	EventError           EventKind = "ERROR"
	EventSessionEnd      EventKind = "SESSION_END"
)

// AuditRecord is one entry in a session's hash-chained event log. Hash is
// SHA-256 over the canonical serialization of SessionID, Seq, Kind, Payload
// and PrevHash (Timestamp is not covered); PrevHash is the zero value for
// the first record in a session, whose Seq is 0.
type AuditRecord struct {
	SessionID string
	Seq       int
	Kind      EventKind
	Payload   []byte // canonical JSON, post-scrub
	Timestamp time.Time
	PrevHash  [32]byte
	Hash      [32]byte
}
