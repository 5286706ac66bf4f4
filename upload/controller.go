package upload

import "sync"

// Controller provides cooperative cancellation of an upload in progress.
// Cancellation is advisory: it is checked before each part transfer, so an
// in-flight request finishes (or is aborted by the HTTP layer's context)
// before the file is marked cancelled.
type Controller struct {
	mu           sync.Mutex
	cancelledAll bool
	cancelledIDs map[string]bool
}

// NewController ...
func NewController() *Controller {
	return &Controller{cancelledIDs: map[string]bool{}}
}

// Cancel marks every file in the upload as cancelled.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelledAll = true
}

// CancelFile marks the file with the given local path as cancelled.
func (c *Controller) CancelFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelledIDs[path] = true
}

// IsCancelled reports whether the given file, or the whole upload, has been
// cancelled.
func (c *Controller) IsCancelled(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelledAll || c.cancelledIDs[path]
}
