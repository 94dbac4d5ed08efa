package model

// WebSocket message types
const (
	WSMessageTypeState = "state"
	WSMessageTypeError = "error"
	WSMessageTypePing  = "ping"
	WSMessageTypePong  = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStateMessage carries a full snapshot of the user's collections
type WSStateMessage struct {
	Type       string           `json:"type"`
	Version    uint64           `json:"version"`
	Assets     []Asset          `json:"assets"`
	Categories []Category       `json:"categories"`
	Tasks      []GenerationTask `json:"tasks"`
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
