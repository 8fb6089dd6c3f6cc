package entity

import "time"

// EventKind discriminates the tagged variants of Event.
type EventKind string

const (
	EventTaskStarted     EventKind = "task_started"
	EventTaskProgress    EventKind = "task_progress"
	EventTaskCompleted   EventKind = "task_completed"
	EventTaskFailed      EventKind = "task_failed"
	EventArtifactCreated EventKind = "artifact_created"
	EventArtifactUpdated EventKind = "artifact_updated"
	EventAPICallStarted  EventKind = "api_call_started"
	EventAPICallProgress EventKind = "api_call_progress"
	EventAPICallCompleted EventKind = "api_call_completed"
	EventAPIError        EventKind = "api_error"
	EventContextUsage    EventKind = "context_usage"
	EventContextCompression EventKind = "context_compression"
	EventSystemConfigLoaded EventKind = "system_config_loaded"
	EventSystemReady     EventKind = "system_ready"
	EventSystemShutdown  EventKind = "system_shutdown"
	EventLogLine         EventKind = "log"
)

// StreamChunkKind distinguishes provider streaming side-channel chunks.
type StreamChunkKind string

const (
	ChunkReasoning StreamChunkKind = "reasoning"
	ChunkContent   StreamChunkKind = "content"
)

// Event is a tagged variant: exactly one of the payload fields matching Kind
// is populated. Every emitted Event carries its own timestamp.
type Event struct {
	Kind      EventKind
	At        time.Time
	Task      *TaskEventData
	Artifact  *ArtifactEventData
	API       *APIEventData
	Context   *ContextEventData
	System    *SystemEventData
	Log       *LogEventData
}

// TaskEventData accompanies task lifecycle events.
type TaskEventData struct {
	Goal       string
	Progress   float64 // completed/total, TaskProgress only
	Summary    string  // TaskCompleted / TaskFailed
	Issues     []Issue // TaskFailed: unresolved issues
}

// ArtifactEventData accompanies artifact events.
type ArtifactEventData struct {
	Name string
	Path string
	Type string
}

// APIEventData accompanies provider call events.
type APIEventData struct {
	Provider string
	Model    string
	Tokens   int
	Cost     float64
	Chunk    string
	ChunkKind StreamChunkKind
	Err      string
}

// ContextEventData accompanies context manager events.
type ContextEventData struct {
	ContextID      string
	Used           int
	Total          int
	Pct            float64
	OriginalSize   int // ContextCompression only
	CompressedSize int
}

// SystemEventData accompanies system lifecycle events.
type SystemEventData struct {
	Message string
}

// LogEventData carries a single log line side-channeled through the bus.
type LogEventData struct {
	Level   string
	Message string
}

func newEvent(kind EventKind) Event {
	return Event{Kind: kind, At: time.Now()}
}

// NewTaskStarted builds a TaskStarted event.
func NewTaskStarted(goal string) Event {
	e := newEvent(EventTaskStarted)
	e.Task = &TaskEventData{Goal: goal}
	return e
}

// NewTaskProgress builds a TaskProgress event.
func NewTaskProgress(progress float64) Event {
	e := newEvent(EventTaskProgress)
	e.Task = &TaskEventData{Progress: progress}
	return e
}

// NewTaskCompleted builds a TaskCompleted event.
func NewTaskCompleted(summary string) Event {
	e := newEvent(EventTaskCompleted)
	e.Task = &TaskEventData{Summary: summary}
	return e
}

// NewTaskFailed builds a TaskFailed event.
func NewTaskFailed(summary string, issues []Issue) Event {
	e := newEvent(EventTaskFailed)
	e.Task = &TaskEventData{Summary: summary, Issues: issues}
	return e
}

// NewArtifactCreated builds an ArtifactCreated event.
func NewArtifactCreated(name, path, typ string) Event {
	e := newEvent(EventArtifactCreated)
	e.Artifact = &ArtifactEventData{Name: name, Path: path, Type: typ}
	return e
}

// NewAPICallStarted builds an APICallStarted event.
func NewAPICallStarted(provider, model string) Event {
	e := newEvent(EventAPICallStarted)
	e.API = &APIEventData{Provider: provider, Model: model}
	return e
}

// NewAPICallProgress builds an APICallProgress (streaming) event.
func NewAPICallProgress(provider, model, chunk string, kind StreamChunkKind) Event {
	e := newEvent(EventAPICallProgress)
	e.API = &APIEventData{Provider: provider, Model: model, Chunk: chunk, ChunkKind: kind}
	return e
}

// NewAPICallCompleted builds an APICallCompleted event.
func NewAPICallCompleted(provider, model string, tokens int, cost float64) Event {
	e := newEvent(EventAPICallCompleted)
	e.API = &APIEventData{Provider: provider, Model: model, Tokens: tokens, Cost: cost}
	return e
}

// NewAPIError builds an APIError event.
func NewAPIError(provider, model, errMsg string) Event {
	e := newEvent(EventAPIError)
	e.API = &APIEventData{Provider: provider, Model: model, Err: errMsg}
	return e
}

// NewContextUsage builds a ContextUsage event.
func NewContextUsage(contextID string, used, total int) Event {
	e := newEvent(EventContextUsage)
	pct := 0.0
	if total > 0 {
		pct = float64(used) / float64(total)
	}
	e.Context = &ContextEventData{ContextID: contextID, Used: used, Total: total, Pct: pct}
	return e
}

// NewContextCompression builds a ContextCompression event.
func NewContextCompression(contextID string, originalSize, compressedSize int) Event {
	e := newEvent(EventContextCompression)
	e.Context = &ContextEventData{ContextID: contextID, OriginalSize: originalSize, CompressedSize: compressedSize}
	return e
}

// NewSystemEvent builds a system lifecycle event (config_loaded, ready, shutdown).
func NewSystemEvent(kind EventKind, message string) Event {
	e := newEvent(kind)
	e.System = &SystemEventData{Message: message}
	return e
}

// NewLogLine builds a log-line event.
func NewLogLine(level, message string) Event {
	e := newEvent(EventLogLine)
	e.Log = &LogEventData{Level: level, Message: message}
	return e
}
