package upload

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/damtools/go-aemupload/upload/naming"
	"github.com/damtools/go-aemupload/upload/network"
	"github.com/damtools/go-aemupload/upload/queue"
	"github.com/damtools/go-aemupload/upload/tree"
	"github.com/damtools/go-aemupload/upload/walker"
)

// FileSystemUpload uploads a local directory tree: walk the tree, cleanse
// names into remote node names, create the remote folders, then upload the
// files of each folder as one direct-binary batch.
type FileSystemUpload struct {
	options      FileSystemUploadOptions
	uploader     *batchUploader
	cleanser     *naming.Cleanser
	targetFolder string
}

// NewFileSystemUpload validates the options (including the name-cleansing
// configuration, which fails fast here) and creates the upload.
func NewFileSystemUpload(options FileSystemUploadOptions, logger log.Logger) (*FileSystemUpload, error) {
	options.applyDefaults()
	if err := options.validate(); err != nil {
		return nil, err
	}

	cleanser, err := options.cleanser()
	if err != nil {
		return nil, err
	}

	baseURL, targetFolder, err := options.targetURL()
	if err != nil {
		return nil, err
	}

	client, err := network.NewClient(network.ClientOptions{
		BaseURL:     baseURL,
		User:        options.User,
		Password:    options.Password,
		BearerToken: options.BearerToken,
		RetryCount:  options.HTTPRetryCount,
		RetryDelay:  options.HTTPRetryDelay,
	}, logger)
	if err != nil {
		return nil, WrapError(CodeInvalidOptions, err, "invalid repository client configuration")
	}

	return &FileSystemUpload{
		options: options,
		uploader: &batchUploader{
			options:    options.Options,
			logger:     logger,
			client:     client,
			emitter:    &emitter{},
			controller: NewController(),
		},
		cleanser:     cleanser,
		targetFolder: targetFolder,
	}, nil
}

// OnEvent registers a listener for the public upload events.
func (u *FileSystemUpload) OnEvent(listener Listener) {
	u.uploader.emitter.addListener(listener)
}

// Controller returns the cancellation controller for this upload.
func (u *FileSystemUpload) Controller() *Controller {
	return u.uploader.controller
}

// Execute runs the full pipeline. Walk and tree-build failures (including
// an exceeded path or file budget) return an error with no result; once
// those phases complete the Result is always returned, with per-file and
// per-folder failures recorded on it.
func (u *FileSystemUpload) Execute(ctx context.Context) (*Result, error) {
	logger := u.uploader.logger

	logger.Debugf("Walking %s", u.options.LocalPath)
	walked, err := walker.Walk(walker.Options{
		Root:            u.options.LocalPath,
		Deep:            u.options.Deep,
		MaximumPaths:    u.options.MaximumPaths,
		IncludePatterns: u.options.IncludePatterns,
	}, logger)
	if err != nil {
		switch {
		case errors.Is(err, walker.ErrMaximumPathsExceeded):
			return nil, WrapError(CodeTooLarge, err, "too many entries beneath %s", u.options.LocalPath)
		case errors.Is(err, os.ErrNotExist):
			return nil, WrapError(CodeNotFound, err, "walk %s", u.options.LocalPath)
		default:
			return nil, WrapError(CodeUnknown, err, "walk %s", u.options.LocalPath)
		}
	}
	logger.Infof("Found %d files and %d folders beneath %s",
		len(walked.Files), len(walked.Directories), u.options.LocalPath)

	itemTree, err := tree.Build(ctx, walked, u.cleanser, tree.Options{
		LocalRoot:    u.options.LocalPath,
		TargetFolder: u.targetFolder,
		MaxFiles:     u.options.MaxUploadFiles,
	})
	if err != nil {
		if errors.Is(err, tree.ErrTooManyFiles) {
			return nil, WrapError(CodeTooLarge, err, "too many files beneath %s", u.options.LocalPath)
		}
		return nil, err
	}

	result := NewResult()
	started := time.Now()

	for _, walkErr := range walked.Errors {
		result.addError(walkErr)
		logger.Warnf("Walk error: %s", walkErr)
	}

	u.createFolders(ctx, result, itemTree)

	for _, batch := range itemTree.Batches() {
		files := make([]FileOptions, len(batch.Assets))
		for i, asset := range batch.Assets {
			files[i] = FileOptions{
				FileName: asset.NodeName,
				FileSize: asset.Size,
				FilePath: asset.LocalPath,
			}
		}

		if err := u.uploader.uploadBatch(ctx, result, batch.RemoteFolder, files); err != nil {
			// already recorded per file; keep going with the other folders
			result.addError(err)
		}
	}

	result.setTotalTime(time.Since(started))
	u.uploader.logSummary(result)
	return result, nil
}

// createFolders creates the remote hierarchy, parents before children, with
// at most MaxConcurrent creations in flight. Each folder is created at most
// once, serialized by a per-path lock.
func (u *FileSystemUpload) createFolders(ctx context.Context, result *Result, itemTree *tree.Tree) {
	creator := &folderCreator{
		uploader: u.uploader,
		result:   result,
		locks:    map[string]*sync.Mutex{},
		created:  map[string]bool{},
		failed:   map[string]bool{},
	}

	directories := itemTree.Directories()
	batchManager := queue.NewBatchManager()
	foldersReady := make(chan struct{})
	batchID := batchManager.CreateBatch(len(directories)+1, func() { close(foldersReady) })

	// the target folder itself may already exist; everything beneath it is
	// created fresh
	creator.ensureRoot(ctx, itemTree.Root())
	batchManager.UpdateBatch(batchID)

	if len(directories) > 0 {
		q := queue.NewConcurrentQueue(u.options.MaxConcurrent)
		items := make([]interface{}, len(directories))
		for i := range directories {
			items[i] = directories[i]
		}
		q.PushAll(items, func(item interface{}) error {
			creator.ensure(ctx, item.(*tree.Directory))
			batchManager.UpdateBatch(batchID)
			return nil
		})
	}

	<-foldersReady
}

// folderCreator deduplicates remote folder creation across concurrently
// processed directories: each path is attempted at most once, whether the
// attempt succeeded or not. The lock registry lives for one upload
// invocation.
type folderCreator struct {
	uploader *batchUploader
	result   *Result

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	created map[string]bool
	failed  map[string]bool
}

func (c *folderCreator) pathLock(path string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[path] = lock
	}
	return lock
}

func (c *folderCreator) isAttempted(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created[path] || c.failed[path]
}

func (c *folderCreator) markCreated(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created[path] = true
}

func (c *folderCreator) markFailed(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[path] = true
}

// ensureRoot creates the target folder when it does not exist yet.
func (c *folderCreator) ensureRoot(ctx context.Context, root *tree.Directory) {
	path := root.RemotePath()
	lock := c.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if c.isAttempted(path) {
		return
	}

	exists, err := c.uploader.client.FolderExists(ctx, path)
	if err != nil {
		c.uploader.logger.Warnf("Could not check for folder %s: %s", path, err)
	}
	if exists {
		c.markCreated(path)
		return
	}

	c.create(ctx, path, "", root.Title)
}

// ensure creates the folder after making sure its parent has been attempted.
func (c *folderCreator) ensure(ctx context.Context, dir *tree.Directory) {
	parent := dir.Parent()
	if parent != nil && !c.isAttempted(parent.RemotePath()) {
		c.ensure(ctx, parent)
	}

	path := dir.RemotePath()
	lock := c.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if c.isAttempted(path) {
		return
	}

	parentPath := ""
	if parent != nil {
		parentPath = parent.RemotePath()
	}
	c.create(ctx, path, parentPath, dir.Title)
}

func (c *folderCreator) create(ctx context.Context, path, parentPath, title string) {
	started := time.Now()
	_, err := c.uploader.client.CreateFolder(ctx, path, title)

	dirResult := &CreateDirectoryResult{
		FolderPath:  path,
		FolderTitle: title,
		Elapsed:     time.Since(started),
	}
	if err != nil {
		c.markFailed(path)
		dirResult.Err = mapRemoteError(err, "create folder %s", path)
		c.result.addDirectoryResult(dirResult)
		c.uploader.logger.Warnf("Failed to create folder %s: %s", path, err)
		return
	}

	c.markCreated(path)
	c.result.addDirectoryResult(dirResult)
	c.uploader.emitter.emit(Event{
		Type:         EventFolderCreated,
		FolderPath:   path,
		TargetParent: parentPath,
		FolderTitle:  title,
	})
}
