package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/damtools/go-aemupload/upload/network"
	"github.com/damtools/go-aemupload/upload/queue"
)

// partJob is one part of one file awaiting transfer.
type partJob struct {
	id        string
	info      TransferInfo
	file      FileOptions
	partIndex int
	partCount int
	part      network.Part
}

// partUploader transfers files part by part, serially or through a bounded
// concurrent queue, and reports every signal to the transfer handler.
type partUploader struct {
	client        *network.Client
	logger        log.Logger
	concurrent    bool
	maxConcurrent int
}

// uploadAll transfers every job and returns once all of them have settled.
func (u *partUploader) uploadAll(ctx context.Context, jobs []partJob, handler *TransferHandler) {
	if !u.concurrent {
		for _, job := range jobs {
			u.uploadPart(ctx, job, handler)
		}
		return
	}

	q := queue.NewConcurrentQueue(u.maxConcurrent)
	items := make([]interface{}, len(jobs))
	for i := range jobs {
		items[i] = jobs[i]
	}
	q.PushAll(items, func(item interface{}) error {
		u.uploadPart(ctx, item.(partJob), handler)
		return nil
	})
}

// uploadPart transfers one part. PartEnded is always called exactly once,
// whether the part transferred, failed, or drained out without a network
// call.
func (u *partUploader) uploadPart(ctx context.Context, job partJob, handler *TransferHandler) {
	if !handler.PartStarted(job.id, job.info, job.partCount) {
		handler.PartEnded(job.id, nil)
		return
	}

	result := &PartUploadResult{
		StartOffset: job.part.StartOffset,
		EndOffset:   job.part.EndOffset,
		URI:         job.part.URI,
	}

	data, err := u.readPartData(job)
	if err != nil {
		result.Err = err
		handler.PartEnded(job.id, result)
		return
	}

	started := time.Now()
	err = u.client.UploadPart(ctx, job.part, data, job.file.PartHeaders, func(transferred int64) {
		handler.PartProgress(job.id, job.partIndex, transferred)
	})
	result.Elapsed = time.Since(started)
	if err != nil {
		result.Err = mapRemoteError(err, "upload part [%d, %d) of %s", job.part.StartOffset, job.part.EndOffset, job.info.FileName)
	}

	handler.PartEnded(job.id, result)
}

func (u *partUploader) readPartData(job partJob) ([]byte, error) {
	size := job.part.Size()

	if job.file.Blob != nil {
		if job.part.EndOffset > int64(len(job.file.Blob)) {
			return nil, NewError(CodeInvalidOptions, "part [%d, %d) of %s is out of range for its blob of %d bytes",
				job.part.StartOffset, job.part.EndOffset, job.info.FileName, len(job.file.Blob))
		}
		return job.file.Blob[job.part.StartOffset:job.part.EndOffset], nil
	}

	file, err := os.Open(job.file.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", job.file.FilePath, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warnf("failed to close %s: %s", job.file.FilePath, err)
		}
	}()

	data, err := io.ReadAll(io.NewSectionReader(file, job.part.StartOffset, size))
	if err != nil {
		return nil, fmt.Errorf("read part [%d, %d) of %s: %w", job.part.StartOffset, job.part.EndOffset, job.file.FilePath, err)
	}
	if int64(len(data)) != size {
		return nil, NewError(CodeUnexpectedAPIState, "part [%d, %d) of %s read %d bytes",
			job.part.StartOffset, job.part.EndOffset, job.file.FilePath, len(data))
	}
	return data, nil
}
