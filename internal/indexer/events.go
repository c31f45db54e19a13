package indexer

// EventType distinguishes progress, completion and failure events.
type EventType string

// Event types
const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Phase names the stage of a sync run a progress event belongs to.
type Phase string

// Sync phases in the order they run
const (
	PhaseRemovingDeleted Phase = "removing_deleted"
	PhaseAddingUntracked Phase = "adding_untracked"
	PhaseRemovingEmpty   Phase = "removing_empty"
)

// Event is one element of the progress stream. Total is zero for the prune
// phase, whose size is not known up front.
type Event struct {
	Type    EventType `json:"type"`
	Phase   Phase     `json:"phase,omitempty"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	Path    string    `json:"path,omitempty"`
	Stats   *Stats    `json:"stats,omitempty"`
	Details *Details  `json:"details,omitempty"`
	Message string    `json:"message,omitempty"`
}

// EventSink receives events synchronously on the goroutine running the
// operation. A nil sink discards events.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}

// Stats are the aggregate counts of a sync run.
type Stats struct {
	MissingFiles   int `json:"missing_files"`
	UntrackedFiles int `json:"untracked_files"`
	NameUpdates    int `json:"name_updates"`
	EmptyFolders   int `json:"empty_folders"`
	Duplicates     int `json:"duplicates"`
	Failed         int `json:"failed"`
}

// Duplicate is an untracked file whose digest another record already holds.
type Duplicate struct {
	Path         string `json:"path"`
	ExistingPath string `json:"existing_path"`
}

// Failure is an untracked file that could not be indexed.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Details lists the paths behind each count in Stats.
type Details struct {
	MissingFiles   []string    `json:"missing_files"`
	UntrackedFiles []string    `json:"untracked_files"`
	NameUpdates    []string    `json:"name_updates"`
	EmptyFolders   []string    `json:"empty_folders"`
	Duplicates     []Duplicate `json:"duplicates"`
	Failed         []Failure   `json:"failed"`
}

// Emit forwards e to sink when it is non-nil. Packages that wrap a sync run
// use it to relay events.
func Emit(sink EventSink, e Event) {
	sink.emit(e)
}
