package pipeline

import (
	"time"

	"github.com/airframesio/report-archiver/cmd/report"
)

// State is a close-cycle phase
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateArchiving  State = "archiving"
	StatePurging    State = "purging"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Event is emitted on every state transition and after each purge batch
type Event struct {
	InvocationID     string      `json:"invocation_id"`
	Kind             report.Kind `json:"kind"`
	State            State       `json:"state"`
	Message          string      `json:"message,omitempty"`
	ArchiveKey       string      `json:"archive_key,omitempty"`
	BatchesCompleted int         `json:"batches_completed,omitempty"`
	BatchesTotal     int         `json:"batches_total,omitempty"`
	Time             time.Time   `json:"time"`
}

// Observer receives pipeline events. Observe must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
