package upload

import (
	"sort"
	"sync"
	"time"
)

// PartUploadResult records the outcome of one part PUT.
type PartUploadResult struct {
	StartOffset int64
	EndOffset   int64
	URI         string
	Elapsed     time.Duration
	Err         error
}

// Successful ...
func (p *PartUploadResult) Successful() bool {
	return p.Err == nil
}

// FileUploadResult accumulates the outcome of one file across all its parts.
// It has a single writer (the transfer handler), so no internal locking.
type FileUploadResult struct {
	FileName     string
	TargetFolder string
	TargetFile   string
	FileSize     int64
	MimeType     string

	Parts           []PartUploadResult
	CompleteElapsed time.Duration
	Cancelled       bool
	Err             error

	started time.Time
	elapsed time.Duration
}

func (f *FileUploadResult) startTimer() {
	f.started = time.Now()
}

func (f *FileUploadResult) stopTimer() {
	if !f.started.IsZero() && f.elapsed == 0 {
		f.elapsed = time.Since(f.started)
	}
}

// Elapsed returns the total transfer duration for the file.
func (f *FileUploadResult) Elapsed() time.Duration {
	return f.elapsed
}

// Successful reports whether every part transferred and the complete call
// succeeded.
func (f *FileUploadResult) Successful() bool {
	return f.Err == nil && !f.Cancelled
}

// CreateDirectoryResult records the outcome of one remote folder creation.
type CreateDirectoryResult struct {
	FolderPath  string
	FolderTitle string
	Elapsed     time.Duration
	Err         error
	RetryErrors []error
}

// Result aggregates everything that happened during one upload invocation.
// It is safe for concurrent registration while the upload runs and is
// read-only once returned to the caller.
type Result struct {
	mu sync.Mutex

	totalTime   time.Duration
	fileResults []*FileUploadResult
	dirResults  []*CreateDirectoryResult
	errs        []error
}

// NewResult ...
func NewResult() *Result {
	return &Result{}
}

func (r *Result) addFileResult(f *FileUploadResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fileResults = append(r.fileResults, f)
}

func (r *Result) addDirectoryResult(d *CreateDirectoryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirResults = append(r.dirResults, d)
}

func (r *Result) addError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *Result) setTotalTime(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalTime = d
}

// FileResults returns the per-file outcomes in registration order.
func (r *Result) FileResults() []*FileUploadResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*FileUploadResult, len(r.fileResults))
	copy(out, r.fileResults)
	return out
}

// DirectoryResults returns the per-folder creation outcomes.
func (r *Result) DirectoryResults() []*CreateDirectoryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*CreateDirectoryResult, len(r.dirResults))
	copy(out, r.dirResults)
	return out
}

// Errors collects every failure recorded during the upload: top-level
// errors, failed folder creations and failed files.
func (r *Result) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	errs = append(errs, r.errs...)
	for _, d := range r.dirResults {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	for _, f := range r.fileResults {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// TotalTime returns the wall-clock duration of the whole upload.
func (r *Result) TotalTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalTime
}

// TotalFiles returns the number of files that were attempted.
func (r *Result) TotalFiles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fileResults)
}

// TotalCompleted returns the number of files that uploaded successfully.
func (r *Result) TotalCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, f := range r.fileResults {
		if f.Successful() {
			count++
		}
	}
	return count
}

// TotalSize returns the byte total of all successfully uploaded files.
func (r *Result) TotalSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, f := range r.fileResults {
		if f.Successful() {
			total += f.FileSize
		}
	}
	return total
}

// AverageFileTime returns the mean transfer duration over completed files.
func (r *Result) AverageFileTime() time.Duration {
	durations := r.completedDurations()
	if len(durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

// NinetiethPercentileFileTime returns the 90th-percentile transfer duration
// over completed files.
func (r *Result) NinetiethPercentileFileTime() time.Duration {
	durations := r.completedDurations()
	if len(durations) == 0 {
		return 0
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := (len(durations) * 9) / 10
	if idx >= len(durations) {
		idx = len(durations) - 1
	}
	return durations[idx]
}

func (r *Result) completedDurations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var durations []time.Duration
	for _, f := range r.fileResults {
		if f.Successful() {
			durations = append(durations, f.Elapsed())
		}
	}
	return durations
}
