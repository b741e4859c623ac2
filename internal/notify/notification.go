package notify

import (
	"fmt"

	"gitdeck.dev/gitdeck/internal/git"
)

// Notification is one event delivered to the consumer. The concrete types are
// JobCompleted, JobFailed, RemoteOpProgress and BackendStateChanged.
type Notification interface {
	isNotification()
	fmt.Stringer
}

// JobCompleted reports that the current generation of a slot finished successfully.
// The payload is read through the slot's last result, not carried here.
type JobCompleted struct {
	Kind       git.Kind
	Generation uint64
}

// JobFailed reports that the current generation of a slot failed
type JobFailed struct {
	Kind       git.Kind
	Generation uint64
	Err        error
}

// Progress holds the transfer counters of a remote operation. Objects, Total and
// Bytes cover the whole operation and never decrease; StageObjects and StageTotal
// count within the current Stage.
type Progress struct {
	Stage        string
	StageObjects uint64
	StageTotal   uint64
	Objects      uint64
	Total        uint64
	Bytes        uint64
}

// Percent returns the completion ratio of the current stage in [0, 1], or 0 when
// the stage total is unknown
func (p Progress) Percent() float64 {
	if p.StageTotal == 0 {
		return 0
	}
	if p.StageObjects >= p.StageTotal {
		return 1
	}
	return float64(p.StageObjects) / float64(p.StageTotal)
}

// RemoteOpProgress reports a phase change or transfer progress of a remote operation
type RemoteOpProgress struct {
	Handle   string
	Kind     git.Kind
	Phase    string
	Progress Progress
}

// BackendStateChanged reports that cached results were invalidated because the
// repository changed underneath the engine
type BackendStateChanged struct {
	Reason string
}

func (JobCompleted) isNotification()        {}
func (JobFailed) isNotification()           {}
func (RemoteOpProgress) isNotification()    {}
func (BackendStateChanged) isNotification() {}

func (n JobCompleted) String() string {
	return fmt.Sprintf("%s completed (gen %d)", n.Kind, n.Generation)
}

func (n JobFailed) String() string {
	return fmt.Sprintf("%s failed (gen %d): %v", n.Kind, n.Generation, n.Err)
}

func (n RemoteOpProgress) String() string {
	return fmt.Sprintf("%s %s: %s %d/%d", n.Kind, n.Phase, n.Progress.Stage, n.Progress.StageObjects, n.Progress.StageTotal)
}

func (n BackendStateChanged) String() string {
	return "backend state changed: " + n.Reason
}
