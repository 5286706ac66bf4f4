package upload

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/damtools/go-aemupload/upload/network"
	"github.com/damtools/go-aemupload/upload/queue"
)

// DirectBinaryUpload uploads an explicit list of files into one repository
// folder using the direct-binary protocol.
type DirectBinaryUpload struct {
	uploader     *batchUploader
	targetFolder string
}

// NewDirectBinaryUpload validates the options and creates an upload bound
// to the folder named by options.URL.
func NewDirectBinaryUpload(options Options, logger log.Logger) (*DirectBinaryUpload, error) {
	options.applyDefaults()

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

	return &DirectBinaryUpload{
		uploader: &batchUploader{
			options:    options,
			logger:     logger,
			client:     client,
			emitter:    &emitter{},
			controller: NewController(),
		},
		targetFolder: targetFolder,
	}, nil
}

// OnEvent registers a listener for the public upload events.
func (u *DirectBinaryUpload) OnEvent(listener Listener) {
	u.uploader.emitter.addListener(listener)
}

// Controller returns the cancellation controller for this upload.
func (u *DirectBinaryUpload) Controller() *Controller {
	return u.uploader.controller
}

// Execute uploads the given files. The returned Result is always usable;
// per-file failures are recorded on it rather than aborting sibling files.
// A non-nil error means the whole batch failed before part transfer began.
func (u *DirectBinaryUpload) Execute(ctx context.Context, files []FileOptions) (*Result, error) {
	result := NewResult()
	started := time.Now()

	for i := range files {
		if err := files[i].validate(); err != nil {
			return result, err
		}
	}

	err := u.uploader.uploadBatch(ctx, result, u.targetFolder, files)

	result.setTotalTime(time.Since(started))
	u.uploader.logSummary(result)
	return result, err
}

// batchUploader runs the initiate → transfer parts → complete pipeline for
// the files of one remote folder. It is shared by the explicit-file and
// filesystem entry points.
type batchUploader struct {
	options    Options
	logger     log.Logger
	client     *network.Client
	emitter    *emitter
	controller *Controller
}

// completionInfo is what the terminal callback needs to finish one file.
type completionInfo struct {
	file        FileOptions
	completeURI string
	uploadToken string
	mimeType    string
}

func (b *batchUploader) uploadBatch(ctx context.Context, result *Result, folderPath string, files []FileOptions) error {
	files = b.rejectUntransferable(ctx, result, folderPath, files)
	if len(files) == 0 {
		return nil
	}

	initiateFiles := make([]network.InitiateFile, len(files))
	for i, file := range files {
		initiateFiles[i] = network.InitiateFile{Name: file.FileName, Size: file.FileSize}
	}

	response, err := b.client.InitiateUpload(ctx, folderPath, initiateFiles)
	if err != nil {
		// the whole batch shares one initiate call, so every file fails
		batchErr := mapRemoteError(err, "initiate upload into %s", folderPath)
		for _, file := range files {
			b.recordFailure(result, folderPath, file, batchErr)
		}
		return batchErr
	}

	var jobs []partJob
	completions := map[string]completionInfo{}
	uploadable := 0
	for i, file := range files {
		info := response.Files[i]
		parts, err := network.ComputeParts(file.FileSize, info)
		if err != nil {
			if errors.Is(err, network.ErrInvalidPartOptions) {
				err = WrapError(CodeInvalidOptions, err, "compute parts for %s", file.FileName)
			}
			b.recordFailure(result, folderPath, file, err)
			continue
		}

		id := file.sourceID()
		transferInfo := TransferInfo{
			FileName:     file.FileName,
			TargetFolder: folderPath,
			TargetFile:   folderPath + "/" + file.FileName,
			FileSize:     file.FileSize,
			MimeType:     info.MimeType,
		}
		for partIndex, part := range parts {
			jobs = append(jobs, partJob{
				id:        id,
				info:      transferInfo,
				file:      file,
				partIndex: partIndex,
				partCount: len(parts),
				part:      part,
			})
		}
		completions[transferInfo.TargetFile] = completionInfo{
			file:        file,
			completeURI: response.CompleteURI,
			uploadToken: info.UploadToken,
			mimeType:    info.MimeType,
		}
		uploadable++
	}
	if uploadable == 0 {
		return nil
	}

	batchManager := queue.NewBatchManager()
	done := make(chan struct{})
	batchID := batchManager.CreateBatch(uploadable, func() { close(done) })

	callbacks := &batchCallbacks{
		uploader:     b,
		ctx:          ctx,
		completions:  completions,
		batchManager: batchManager,
		batchID:      batchID,
	}
	handler := NewTransferHandler(result, b.controller, callbacks, b.options.ProgressDelay)

	uploader := &partUploader{
		client:        b.client,
		logger:        b.logger,
		concurrent:    b.options.Concurrent,
		maxConcurrent: b.options.MaxConcurrent,
	}
	uploader.uploadAll(ctx, jobs, handler)

	// every part has settled by now, so the terminal callbacks have all
	// updated the batch
	<-done
	return nil
}

// rejectUntransferable filters out files that can never transfer: zero-byte
// files (the repository rejects them at initiate time) and replacements
// whose existing asset cannot be deleted. Each rejected file is recorded as
// failed with a fileerror event and no filestart.
func (b *batchUploader) rejectUntransferable(ctx context.Context, result *Result, folderPath string, files []FileOptions) []FileOptions {
	remaining := make([]FileOptions, 0, len(files))
	for _, file := range files {
		if file.FileSize == 0 {
			b.recordFailure(result, folderPath, file,
				NewError(CodeInvalidOptions, "file %s is empty and the repository rejects zero-byte uploads", file.FileName))
			continue
		}

		if file.Replace && !file.CreateVersion {
			assetPath := folderPath + "/" + file.FileName
			if err := b.client.DeleteAsset(ctx, assetPath); err != nil {
				var apiErr *network.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
					b.recordFailure(result, folderPath, file, mapRemoteError(err, "replace existing asset %s", assetPath))
					continue
				}
			}
		}

		remaining = append(remaining, file)
	}
	return remaining
}

func (b *batchUploader) recordFailure(result *Result, folderPath string, file FileOptions, err error) {
	fileResult := &FileUploadResult{
		FileName:     file.FileName,
		TargetFolder: folderPath,
		TargetFile:   folderPath + "/" + file.FileName,
		FileSize:     file.FileSize,
		Err:          err,
	}
	result.addFileResult(fileResult)
	b.emitFileEvent(EventFileError, fileResult)
}

func (b *batchUploader) emitFileEvent(eventType EventType, fileResult *FileUploadResult) {
	b.emitter.emit(Event{
		Type:         eventType,
		FileName:     fileResult.FileName,
		TargetFolder: fileResult.TargetFolder,
		TargetFile:   fileResult.TargetFile,
		FileSize:     fileResult.FileSize,
		MimeType:     fileResult.MimeType,
		Err:          fileResult.Err,
	})
}

func (b *batchUploader) logSummary(result *Result) {
	b.logger.Infof("Uploaded %d of %d files (%s) in %s",
		result.TotalCompleted(), result.TotalFiles(),
		units.HumanSize(float64(result.TotalSize())), result.TotalTime().Round(time.Millisecond))
	if average := result.AverageFileTime(); average > 0 {
		b.logger.Debugf("File timings: average %s, 90th percentile %s",
			average.Round(time.Millisecond), result.NinetiethPercentileFileTime().Round(time.Millisecond))
	}
	if errs := result.Errors(); len(errs) > 0 {
		b.logger.Warnf("%d failures during upload", len(errs))
		for _, err := range errs {
			b.logger.Debugf("  %s", err)
		}
	}
}

// batchCallbacks translates the transfer handler's per-file hooks into
// public events, and finalizes each successful file with the repository
// before reporting it.
type batchCallbacks struct {
	uploader     *batchUploader
	ctx          context.Context
	completions  map[string]completionInfo
	batchManager *queue.BatchManager
	batchID      string
}

func (c *batchCallbacks) OnStarted(fileResult *FileUploadResult) {
	c.uploader.emitFileEvent(EventFileStart, fileResult)
}

func (c *batchCallbacks) OnProgress(fileResult *FileUploadResult, transferred int64) {
	c.uploader.emitter.emit(Event{
		Type:         EventFileProgress,
		FileName:     fileResult.FileName,
		TargetFolder: fileResult.TargetFolder,
		TargetFile:   fileResult.TargetFile,
		FileSize:     fileResult.FileSize,
		MimeType:     fileResult.MimeType,
		Transferred:  transferred,
	})
}

// OnSucceeded issues the complete call for the file. A completion failure
// downgrades the file to failed even though every part transferred.
func (c *batchCallbacks) OnSucceeded(fileResult *FileUploadResult) {
	defer c.batchManager.UpdateBatch(c.batchID)

	completion, ok := c.completions[fileResult.TargetFile]
	if !ok {
		fileResult.Err = NewError(CodeUnexpectedAPIState, "no completion info for %s", fileResult.FileName)
		c.uploader.emitFileEvent(EventFileError, fileResult)
		return
	}

	started := time.Now()
	err := c.uploader.client.CompleteUpload(c.ctx, completion.completeURI, network.CompleteRequest{
		FileName:       completion.file.FileName,
		MimeType:       completion.mimeType,
		UploadToken:    completion.uploadToken,
		UploadDuration: fileResult.Elapsed(),
		CreateVersion:  completion.file.CreateVersion,
		VersionLabel:   completion.file.VersionLabel,
		VersionComment: completion.file.VersionComment,
		Replace:        completion.file.Replace,
	})
	fileResult.CompleteElapsed = time.Since(started)
	if err != nil {
		fileResult.Err = mapRemoteError(err, "complete upload of %s", fileResult.FileName)
		c.uploader.emitFileEvent(EventFileError, fileResult)
		return
	}

	c.uploader.emitFileEvent(EventFileEnd, fileResult)
}

func (c *batchCallbacks) OnError(fileResult *FileUploadResult) {
	defer c.batchManager.UpdateBatch(c.batchID)
	c.uploader.emitFileEvent(EventFileError, fileResult)
}

func (c *batchCallbacks) OnCancelled(fileResult *FileUploadResult) {
	defer c.batchManager.UpdateBatch(c.batchID)
	c.uploader.emitFileEvent(EventFileCancelled, fileResult)
}
