// Package upload implements direct-binary uploads of files and directory
// trees to an AEM Assets instance: initiate the upload with the repository,
// PUT the file parts to the storage URIs it returns, then complete each
// file.
package upload

import (
	"net/url"
	"strings"
	"time"

	"github.com/damtools/go-aemupload/upload/naming"
	"github.com/damtools/go-aemupload/upload/queue"
)

// DefaultProgressDelay is the minimum interval between fileprogress events
// for one file.
const DefaultProgressDelay = 500 * time.Millisecond

// Options is the configuration shared by every upload entry point.
type Options struct {
	// URL is the full URL of the target repository folder, e.g.
	// "http://localhost:4502/content/dam/my-project".
	URL string

	// Basic auth credentials; ignored when BearerToken is set.
	User     string
	Password string
	// BearerToken is attached as an Authorization header when set.
	BearerToken string

	// Concurrent transfers file parts in parallel; otherwise parts are
	// PUT one at a time.
	Concurrent bool
	// MaxConcurrent bounds the number of in-flight part transfers (and,
	// for tree uploads, folder creations). Defaults to
	// queue.DefaultMaxConcurrent.
	MaxConcurrent int

	// HTTPRetryCount and HTTPRetryDelay tune the retry behavior for
	// retryable (5xx and network-level) failures.
	HTTPRetryCount int
	HTTPRetryDelay time.Duration

	// ProgressDelay throttles fileprogress events per file. Defaults to
	// DefaultProgressDelay.
	ProgressDelay time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = queue.DefaultMaxConcurrent
	}
	if o.ProgressDelay <= 0 {
		o.ProgressDelay = DefaultProgressDelay
	}
}

// targetURL splits Options.URL into the repository origin and the absolute
// remote folder path.
func (o *Options) targetURL() (baseURL string, folderPath string, err error) {
	parsed, err := url.Parse(o.URL)
	if err != nil {
		return "", "", NewError(CodeInvalidOptions, "invalid target URL %s: %s", o.URL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", NewError(CodeInvalidOptions, "target URL %s must be absolute", o.URL)
	}
	folderPath = strings.TrimSuffix(parsed.Path, "/")
	if folderPath == "" {
		return "", "", NewError(CodeInvalidOptions, "target URL %s does not name a repository folder", o.URL)
	}
	return parsed.Scheme + "://" + parsed.Host, folderPath, nil
}

// FileOptions describes one file for DirectBinaryUpload. The source is
// either a local file path or an in-memory blob.
type FileOptions struct {
	// FileName is the remote node name the file will be stored under.
	FileName string
	// FileSize is the source size in bytes.
	FileSize int64
	// FilePath is the local source file, mutually exclusive with Blob.
	FilePath string
	// Blob is an in-memory source.
	Blob []byte

	// PartHeaders are added to every part PUT of this file.
	PartHeaders map[string]string

	// Versioning flags, forwarded on the complete call.
	CreateVersion  bool
	VersionLabel   string
	VersionComment string
	// Replace requests replacement of an existing asset. Without
	// CreateVersion the existing asset is deleted first.
	Replace bool
}

func (f *FileOptions) validate() error {
	if f.FileName == "" {
		return NewError(CodeInvalidOptions, "file name must not be empty")
	}
	if f.FileSize < 0 {
		return NewError(CodeInvalidOptions, "file %s has negative size", f.FileName)
	}
	if f.FilePath == "" && f.Blob == nil {
		return NewError(CodeInvalidOptions, "file %s has neither a local path nor blob content", f.FileName)
	}
	if f.FilePath != "" && f.Blob != nil {
		return NewError(CodeInvalidOptions, "file %s has both a local path and blob content", f.FileName)
	}
	if f.CreateVersion && f.Replace {
		return NewError(CodeInvalidOptions, "file %s requests both a new version and replacement", f.FileName)
	}
	return nil
}

// sourceID identifies the file for cancellation and result tracking.
func (f *FileOptions) sourceID() string {
	if f.FilePath != "" {
		return f.FilePath
	}
	return f.FileName
}

// FileSystemUploadOptions configures a directory-tree upload.
type FileSystemUploadOptions struct {
	Options

	// LocalPath is the local directory to upload.
	LocalPath string
	// Deep uploads the full recursive tree; otherwise only the immediate
	// children of LocalPath.
	Deep bool
	// MaximumPaths caps the number of filesystem entries visited during
	// the walk. Defaults to walker.DefaultMaximumPaths.
	MaximumPaths int
	// MaxUploadFiles caps the number of files uploaded. Defaults to
	// tree.DefaultMaxFiles.
	MaxUploadFiles int
	// IncludePatterns optionally restricts the walked files to those
	// matching a doublestar pattern.
	IncludePatterns []string

	// NameTransform customizes name cleansing; defaults to lowercasing
	// folder names and leaving file names untouched.
	NameTransform naming.TransformFunc
	// InvalidCharacterReplacement substitutes for disallowed characters
	// in node names. Defaults to naming.DefaultReplacement.
	InvalidCharacterReplacement string
}

func (o *FileSystemUploadOptions) validate() error {
	if o.LocalPath == "" {
		return NewError(CodeInvalidOptions, "local path must not be empty")
	}
	return nil
}

func (o *FileSystemUploadOptions) cleanser() (*naming.Cleanser, error) {
	cleanser, err := naming.New(naming.Options{
		Transform:   o.NameTransform,
		Replacement: o.InvalidCharacterReplacement,
	})
	if err != nil {
		return nil, WrapError(CodeInvalidOptions, err, "invalid name cleansing configuration")
	}
	return cleanser, nil
}
