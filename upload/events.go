package upload

import "sync"

// EventType identifies one of the public upload notifications.
type EventType string

const (
	EventFileStart     EventType = "filestart"
	EventFileProgress  EventType = "fileprogress"
	EventFileEnd       EventType = "fileend"
	EventFileError     EventType = "fileerror"
	EventFileCancelled EventType = "filecancelled"
	EventFolderCreated EventType = "foldercreated"
)

// Event is the payload delivered to registered listeners. File events carry
// FileName/TargetFolder/FileSize; folder events carry FolderPath/TargetParent.
type Event struct {
	Type EventType

	FileName     string
	TargetFolder string
	TargetFile   string
	FileSize     int64
	MimeType     string
	Transferred  int64

	FolderPath   string
	TargetParent string
	FolderTitle  string

	Err error
}

// Listener receives upload events. Listeners are invoked synchronously in
// registration order; a slow listener slows the upload.
type Listener func(Event)

type emitter struct {
	mu        sync.Mutex
	listeners []Listener
}

func (e *emitter) addListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *emitter) emit(event Event) {
	e.mu.Lock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}
