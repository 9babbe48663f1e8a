package backup

import (
	"fmt"
	"time"

	"github.com/yourusername/remote-backup-manager/internal/logging"
)

// Event kinds delivered to the progress sink.
const (
	EventInfo    = "info"
	EventSuccess = "success"
	EventWarning = "warning"
	EventError   = "error"
)

// Event is one progress notification pushed to the observer of a backup job.
type Event struct {
	Type         string                 `json:"type"`
	Message      string                 `json:"message"`
	Progress     *int                   `json:"progress,omitempty"`
	CurrentFile  string                 `json:"current_file,omitempty"`
	FileProgress *int                   `json:"file_progress,omitempty"`
	Stats        map[string]interface{} `json:"stats,omitempty"`
	Timestamp    string                 `json:"timestamp"`
}

// Sink receives progress events. Delivery is best effort: a nil sink is
// valid, and a panicking sink must never abort the backup.
type Sink func(Event)

// emit delivers an event to the sink, stamping the wall-clock timestamp.
func emit(sink Sink, event Event) {
	if sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.L().Warn("progress_sink_panic", "panic", fmt.Sprint(r))
		}
	}()

	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format("15:04:05")
	}

	sink(event)
}

func progressPtr(value int) *int {
	return &value
}
