package types

type MessageType string

const (
	SchemaMessage           MessageType = "SCHEMA"
	RecordMessage           MessageType = "RECORD"
	ConnectionStatusMessage MessageType = "CONNECTION_STATUS"
	SpecMessage             MessageType = "SPEC"
)

type ConnectionStatus string

const (
	ConnectionSucceed ConnectionStatus = "SUCCEEDED"
	ConnectionFailed  ConnectionStatus = "FAILED"
)

// Message is a dto for one line of the emitted message stream
type Message struct {
	Type             MessageType    `json:"type"`
	Stream           string         `json:"stream,omitempty"`
	Schema           *Schema        `json:"schema,omitempty"`
	Record           *Record        `json:"record,omitempty"`
	ConnectionStatus *StatusRow     `json:"connectionStatus,omitempty"`
	Spec             map[string]any `json:"spec,omitempty"`
}

// StatusRow is a dto for check result serialization
type StatusRow struct {
	Status  ConnectionStatus `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}
