package model

// WebSocket message types
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage carries the orchestrator state after a transition
type WSSnapshotMessage struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
