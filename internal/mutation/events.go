package mutation

// EventType distinguishes the events of a batch edit stream.
type EventType string

// Event types
const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one element of a batch edit stream. Progress events follow
// each applied record; the stream ends with exactly one complete or error
// event carrying the batch result.
type Event struct {
	Type        EventType    `json:"type"`
	OperationID string       `json:"operation_id"`
	Current     int          `json:"current,omitempty"`
	Total       int          `json:"total"`
	ID          int64        `json:"photo_id,omitempty"`
	Path        string       `json:"path,omitempty"`
	NewPath     string       `json:"new_path,omitempty"`
	Message     string       `json:"message,omitempty"`
	Result      *BatchResult `json:"result,omitempty"`
}

// Sink receives batch events on the editing goroutine. A nil Sink
// discards them.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
