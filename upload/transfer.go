package upload

import (
	"sync"
	"time"
)

// TransferCallbacks receives the per-file lifecycle notifications distilled
// from the raw stream of part signals. Exactly one of OnSucceeded, OnError
// or OnCancelled fires per file, after which the file is terminal.
type TransferCallbacks interface {
	OnStarted(result *FileUploadResult)
	OnProgress(result *FileUploadResult, transferred int64)
	OnSucceeded(result *FileUploadResult)
	OnError(result *FileUploadResult)
	OnCancelled(result *FileUploadResult)
}

// TransferInfo carries the identity of a file whose parts are being
// transferred.
type TransferInfo struct {
	FileName     string
	TargetFolder string
	TargetFile   string
	FileSize     int64
	MimeType     string
}

type transferFile struct {
	// hookMu serializes callback dispatch for this file: hooks fire in
	// the order their state transitions were decided, and nothing fires
	// after the terminal hook
	hookMu sync.Mutex

	result          *FileUploadResult
	expectedParts   int
	endedParts      int
	partTransferred map[int]int64
	failed          bool
	ended           bool
	startedHook     bool
	lastProgress    time.Time
}

func (f *transferFile) totalTransferred() int64 {
	var total int64
	for _, transferred := range f.partTransferred {
		total += transferred
	}
	return total
}

// TransferHandler converts part-started/part-progress/part-ended signals
// into one clean start/progress/end sequence per file, deduplicated across
// that file's parts.
type TransferHandler struct {
	mu            sync.Mutex
	files         map[string]*transferFile
	result        *Result
	controller    *Controller
	callbacks     TransferCallbacks
	progressDelay time.Duration
}

// NewTransferHandler ...
func NewTransferHandler(result *Result, controller *Controller, callbacks TransferCallbacks, progressDelay time.Duration) *TransferHandler {
	if progressDelay <= 0 {
		progressDelay = DefaultProgressDelay
	}
	return &TransferHandler{
		files:         map[string]*transferFile{},
		result:        result,
		controller:    controller,
		callbacks:     callbacks,
		progressDelay: progressDelay,
	}
}

// PartStarted registers one part of a file beginning transfer. On the
// file's first-seen part it creates the file's result, starts its timer and
// fires the started callback (skipped when the file is already cancelled or
// ended). It returns true only if the part should actually transfer: a
// cancelled, failed or ended file drains its remaining parts without
// network calls.
func (h *TransferHandler) PartStarted(id string, info TransferInfo, expectedParts int) bool {
	h.mu.Lock()
	f, seen := h.files[id]
	if !seen {
		f = &transferFile{
			result: &FileUploadResult{
				FileName:     info.FileName,
				TargetFolder: info.TargetFolder,
				TargetFile:   info.TargetFile,
				FileSize:     info.FileSize,
				MimeType:     info.MimeType,
			},
			expectedParts:   expectedParts,
			partTransferred: map[int]int64{},
		}
		f.result.startTimer()
		h.files[id] = f
		h.result.addFileResult(f.result)
	}
	h.mu.Unlock()

	f.hookMu.Lock()
	defer f.hookMu.Unlock()

	h.mu.Lock()
	cancelled := h.controller.IsCancelled(id)
	proceed := !cancelled && !f.failed && !f.ended

	// a sibling part may have already ended the file; the started hook is
	// then suppressed rather than fired after the terminal hook
	fireStarted := !cancelled && !f.ended && !f.startedHook
	if fireStarted {
		f.startedHook = true
	}
	result := f.result
	h.mu.Unlock()

	if fireStarted {
		h.callbacks.OnStarted(result)
	}
	return proceed
}

// PartProgress records that transferred bytes of the given part have been
// sent so far. Progress callbacks are throttled to at most one per
// progressDelay per file and never fire after the file has ended.
func (h *TransferHandler) PartProgress(id string, partIndex int, transferred int64) {
	h.mu.Lock()
	f, seen := h.files[id]
	h.mu.Unlock()
	if !seen {
		return
	}

	f.hookMu.Lock()
	defer f.hookMu.Unlock()

	h.mu.Lock()
	if f.ended {
		h.mu.Unlock()
		return
	}
	f.partTransferred[partIndex] = transferred

	now := time.Now()
	if now.Sub(f.lastProgress) < h.progressDelay {
		h.mu.Unlock()
		return
	}
	f.lastProgress = now
	total := f.totalTransferred()
	result := f.result
	h.mu.Unlock()

	h.callbacks.OnProgress(result, total)
}

// PartEnded records that one part settled, successfully or not. part is nil
// when the part never started transferring. The file's terminal disposition
// is decided with priority cancelled > error > all-parts-complete success;
// exactly one terminal callback fires per file, and every later call for
// the file is a no-op.
func (h *TransferHandler) PartEnded(id string, part *PartUploadResult) {
	h.mu.Lock()
	f, seen := h.files[id]
	h.mu.Unlock()
	if !seen {
		return
	}

	f.hookMu.Lock()
	defer f.hookMu.Unlock()

	h.mu.Lock()
	if f.ended {
		h.mu.Unlock()
		return
	}

	if part != nil {
		f.result.Parts = append(f.result.Parts, *part)
	}
	f.endedParts++

	var terminal func(*FileUploadResult)
	switch {
	case h.controller.IsCancelled(id):
		f.ended = true
		f.result.Cancelled = true
		f.result.Err = NewError(CodeUserCancelled, "upload of %s was cancelled", f.result.FileName)
		terminal = h.callbacks.OnCancelled
	case part != nil && part.Err != nil:
		f.ended = true
		f.failed = true
		f.result.Err = part.Err
		terminal = h.callbacks.OnError
	case f.endedParts >= f.expectedParts:
		f.ended = true
		terminal = h.callbacks.OnSucceeded
	}

	if terminal == nil {
		h.mu.Unlock()
		return
	}

	f.result.stopTimer()
	result := f.result
	h.mu.Unlock()

	terminal(result)
}
