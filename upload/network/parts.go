// Package network implements the remote repository collaborator: the
// initiate/complete/folder REST calls and the part-PUT uploader.
package network

import (
	"errors"
	"fmt"
)

// ErrInvalidPartOptions is returned when a file cannot be divided across
// the upload URIs the remote supplied.
var ErrInvalidPartOptions = errors.New("file cannot be divided across the supplied upload URIs")

// FileInfo is the per-file portion of an initiate response.
type FileInfo struct {
	FileName    string   `json:"fileName"`
	MimeType    string   `json:"mimeType"`
	UploadToken string   `json:"uploadToken"`
	UploadURIs  []string `json:"uploadURIs"`
	MinPartSize int64    `json:"minPartSize"`
	MaxPartSize int64    `json:"maxPartSize"`
}

// InitiateResponse is the parsed initiate-upload response for one folder.
type InitiateResponse struct {
	CompleteURI string     `json:"completeURI"`
	Files       []FileInfo `json:"files"`
}

// Part is one contiguous [StartOffset, EndOffset) byte range of a file,
// bound to the URI it must be PUT to.
type Part struct {
	StartOffset int64
	EndOffset   int64
	URI         string
}

// Size ...
func (p Part) Size() int64 {
	return p.EndOffset - p.StartOffset
}

// ComputeParts divides fileSize across the upload URIs the remote returned,
// honoring its min/max part size constraints. The resulting parts are
// contiguous, non-overlapping, ordered by start offset, and exactly cover
// [0, fileSize); URIs beyond what the file needs go unused.
func ComputeParts(fileSize int64, info FileInfo) ([]Part, error) {
	numURIs := int64(len(info.UploadURIs))
	if numURIs == 0 {
		return nil, fmt.Errorf("no upload URIs supplied for %s: %w", info.FileName, ErrInvalidPartOptions)
	}

	var partSize int64
	if fileSize < info.MinPartSize {
		// too small to split: the remote must have supplied exactly one URI
		if numURIs != 1 {
			return nil, fmt.Errorf("%s is smaller than the minimum part size %d but %d URIs were supplied: %w",
				info.FileName, info.MinPartSize, numURIs, ErrInvalidPartOptions)
		}
		partSize = fileSize
	} else {
		partSize = (fileSize + numURIs - 1) / numURIs
		if partSize < info.MinPartSize {
			partSize = info.MinPartSize
		}
		if info.MaxPartSize > 0 {
			requiredParts := (fileSize + info.MaxPartSize - 1) / info.MaxPartSize
			if requiredParts > numURIs {
				return nil, fmt.Errorf("%s requires %d parts of at most %d bytes but only %d URIs were supplied: %w",
					info.FileName, requiredParts, info.MaxPartSize, numURIs, ErrInvalidPartOptions)
			}
		}
	}

	var parts []Part
	var start int64
	for i := int64(0); i < numURIs && start < fileSize; i++ {
		end := start + partSize
		if end > fileSize {
			end = fileSize
		}
		parts = append(parts, Part{StartOffset: start, EndOffset: end, URI: info.UploadURIs[i]})
		start = end
	}

	if fileSize == 0 {
		parts = append(parts, Part{StartOffset: 0, EndOffset: 0, URI: info.UploadURIs[0]})
	}

	return parts, nil
}
