package types

// Event represents a typed audit event emitted during authorization and
// execution state changes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
