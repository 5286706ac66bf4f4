package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// APIError is returned for any non-2xx repository response. The upload
// layer maps it onto the public error taxonomy.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// InitiateFile names one file of an initiate request.
type InitiateFile struct {
	Name string
	Size int64
}

// CompleteRequest carries the fields of one complete-upload call.
type CompleteRequest struct {
	FileName       string
	MimeType       string
	UploadToken    string
	UploadDuration time.Duration
	CreateVersion  bool
	VersionLabel   string
	VersionComment string
	Replace        bool
}

// ClientOptions configures the repository client.
type ClientOptions struct {
	// BaseURL is the repository origin, e.g. "http://localhost:4502".
	BaseURL string
	// Basic auth credentials; ignored when BearerToken is set.
	User     string
	Password string
	// BearerToken is attached as an Authorization header when set.
	BearerToken string
	// RetryCount overrides the retry limit for retryable failures.
	RetryCount int
	// RetryDelay overrides the initial delay between retries; subsequent
	// delays back off exponentially.
	RetryDelay time.Duration
}

// Client performs the repository REST calls and the raw part PUTs.
type Client struct {
	options    ClientOptions
	httpClient *retryablehttp.Client
	logger     log.Logger
}

// NewClient ...
func NewClient(options ClientOptions, logger log.Logger) (*Client, error) {
	baseURL := strings.TrimSuffix(options.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %s: %w", options.BaseURL, err)
	}
	options.BaseURL = baseURL

	httpClient := retryhttp.NewClient(logger)
	if options.RetryCount > 0 {
		httpClient.RetryMax = options.RetryCount
	}
	if options.RetryDelay > 0 {
		httpClient.RetryWaitMin = options.RetryDelay
	}

	return &Client{
		options:    options,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// InitiateUpload starts a direct-binary upload for a batch of files that
// all live in the given remote folder.
func (c *Client) InitiateUpload(ctx context.Context, folderPath string, files []InitiateFile) (InitiateResponse, error) {
	form := url.Values{}
	for _, file := range files {
		form.Add("fileName", file.Name)
		form.Add("fileSize", strconv.FormatInt(file.Size, 10))
	}

	initiateURL := c.options.BaseURL + escapePath(folderPath) + ".initiateUpload.json"
	c.logger.Debugf("Initiating upload of %d files at %s", len(files), initiateURL)

	body, err := c.postForm(ctx, initiateURL, form)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("initiate upload for %s: %w", folderPath, err)
	}

	var response InitiateResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return InitiateResponse{}, fmt.Errorf("parse initiate response for %s: %w", folderPath, err)
	}
	if len(response.Files) != len(files) {
		return InitiateResponse{}, fmt.Errorf("initiate response for %s describes %d files, expected %d",
			folderPath, len(response.Files), len(files))
	}

	response.CompleteURI = c.resolveURI(response.CompleteURI)
	return response, nil
}

// CompleteUpload finalizes one file after all of its parts transferred.
func (c *Client) CompleteUpload(ctx context.Context, completeURI string, request CompleteRequest) error {
	form := url.Values{}
	form.Set("fileName", request.FileName)
	form.Set("mimeType", request.MimeType)
	form.Set("uploadToken", request.UploadToken)
	form.Set("uploadDuration", strconv.FormatInt(request.UploadDuration.Milliseconds(), 10))
	if request.CreateVersion {
		form.Set("createVersion", "true")
		if request.VersionLabel != "" {
			form.Set("versionLabel", request.VersionLabel)
		}
		if request.VersionComment != "" {
			form.Set("versionComment", request.VersionComment)
		}
	}
	if request.Replace {
		form.Set("replace", "true")
	}

	c.logger.Debugf("Completing upload of %s", request.FileName)
	if _, err := c.postForm(ctx, c.resolveURI(completeURI), form); err != nil {
		return fmt.Errorf("complete upload of %s: %w", request.FileName, err)
	}
	return nil
}

// CreateFolder creates one remote folder. It reports created=false without
// an error when the folder already exists.
func (c *Client) CreateFolder(ctx context.Context, folderPath, title string) (bool, error) {
	form := url.Values{}
	form.Set("./jcr:primaryType", "sling:Folder")
	form.Set("./jcr:content/jcr:primaryType", "nt:unstructured")
	form.Set("./jcr:content/jcr:title", title)

	folderURL := c.options.BaseURL + escapePath(folderPath)
	c.logger.Debugf("Creating remote folder %s", folderPath)

	_, err := c.postForm(ctx, folderURL, form)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			c.logger.Debugf("Remote folder %s already exists", folderPath)
			return false, nil
		}
		return false, fmt.Errorf("create folder %s: %w", folderPath, err)
	}
	return true, nil
}

// FolderExists checks for a remote folder with a HEAD request.
func (c *Client) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	req, err := retryablehttp.NewRequest(http.MethodHead, c.options.BaseURL+escapePath(folderPath), nil)
	if err != nil {
		return false, fmt.Errorf("create HEAD request for %s: %w", folderPath, err)
	}
	req = req.WithContext(ctx)
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("HEAD %s: %w", folderPath, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &APIError{StatusCode: resp.StatusCode}
	}
	return true, nil
}

// DeleteAsset removes one remote asset; used by replace-without-version.
func (c *Client) DeleteAsset(ctx context.Context, assetPath string) error {
	req, err := retryablehttp.NewRequest(http.MethodDelete, c.options.BaseURL+escapePath(assetPath), nil)
	if err != nil {
		return fmt.Errorf("create DELETE request for %s: %w", assetPath, err)
	}
	req = req.WithContext(ctx)
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", assetPath, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, requestURL string, form url.Values) ([]byte, error) {
	req, err := retryablehttp.NewRequest(http.MethodPost, requestURL, []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: trimForError(body)}
	}
	return body, nil
}

func (c *Client) addAuth(req *retryablehttp.Request) {
	if c.options.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.BearerToken)
		return
	}
	if c.options.User != "" {
		req.SetBasicAuth(c.options.User, c.options.Password)
	}
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warnf("failed to close response body: %s", err)
	}
}

// resolveURI makes a possibly host-relative URI from the remote absolute.
// Paths pass through unchanged; no re-encoding happens here.
func (c *Client) resolveURI(uri string) string {
	if uri == "" || strings.Contains(uri, "://") {
		return uri
	}
	return c.options.BaseURL + uri
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func trimForError(body []byte) string {
	const max = 1024
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
