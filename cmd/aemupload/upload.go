package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/damtools/go-aemupload/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path>",
	Short: "Upload a local file tree to a repository folder",
	Example: `  # Upload the immediate children of ./assets
  aemupload upload ./assets --target http://localhost:4502/content/dam/my-project

  # Upload the full tree with 10 parallel part transfers
  aemupload upload ./assets --target http://localhost:4502/content/dam/my-project --deep --max-concurrent 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd, args[0])
	},
}

func runUpload(cmd *cobra.Command, localPath string) error {
	target, _ := cmd.Flags().GetString("target")
	deep, _ := cmd.Flags().GetBool("deep")
	serial, _ := cmd.Flags().GetBool("serial")
	maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")
	maxFiles, _ := cmd.Flags().GetInt("max-files")
	maxPaths, _ := cmd.Flags().GetInt("max-paths")
	replacement, _ := cmd.Flags().GetString("replacement")
	retryCount, _ := cmd.Flags().GetInt("retry-count")
	verbose, _ := cmd.Flags().GetBool("verbose")
	timeout, _ := cmd.Flags().GetInt("timeout")

	if target == "" {
		return fmt.Errorf("the --target flag is required")
	}

	logger := log.NewLogger()
	logger.EnableDebugLog(verbose)

	creds := loadCredentials()
	fsUpload, err := upload.NewFileSystemUpload(upload.FileSystemUploadOptions{
		Options: upload.Options{
			URL:            target,
			User:           creds.User,
			Password:       creds.Password,
			BearerToken:    creds.BearerToken,
			Concurrent:     !serial,
			MaxConcurrent:  maxConcurrent,
			HTTPRetryCount: retryCount,
		},
		LocalPath:                   localPath,
		Deep:                        deep,
		MaximumPaths:                maxPaths,
		MaxUploadFiles:              maxFiles,
		InvalidCharacterReplacement: replacement,
	}, logger)
	if err != nil {
		return err
	}

	fsUpload.OnEvent(func(event upload.Event) {
		switch event.Type {
		case upload.EventFolderCreated:
			logger.Donef("Created folder %s", event.FolderPath)
		case upload.EventFileStart:
			logger.Infof("Uploading %s (%s)", event.FileName, units.HumanSize(float64(event.FileSize)))
		case upload.EventFileProgress:
			logger.Debugf("  %s: %s of %s", event.FileName,
				units.HumanSize(float64(event.Transferred)), units.HumanSize(float64(event.FileSize)))
		case upload.EventFileEnd:
			logger.Donef("Uploaded %s", event.TargetFile)
		case upload.EventFileError:
			logger.Errorf("Failed to upload %s: %s", event.FileName, event.Err)
		case upload.EventFileCancelled:
			logger.Warnf("Cancelled upload of %s", event.FileName)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	result, err := fsUpload.Execute(ctx)
	if err != nil {
		return err
	}

	if failures := result.Errors(); len(failures) > 0 {
		return fmt.Errorf("%d of %d files failed to upload", len(failures), result.TotalFiles())
	}
	return nil
}

func init() {
	uploadCmd.Flags().StringP("target", "t", "", "Full URL of the target repository folder (required)")
	uploadCmd.Flags().Bool("deep", false, "Upload the full recursive tree instead of immediate children")
	uploadCmd.Flags().Bool("serial", false, "Transfer file parts one at a time")
	uploadCmd.Flags().Int("max-concurrent", 0, "Maximum number of parallel part transfers")
	uploadCmd.Flags().Int("max-files", 0, "Maximum number of files to upload")
	uploadCmd.Flags().Int("max-paths", 0, "Maximum number of filesystem entries to walk")
	uploadCmd.Flags().String("replacement", "", "Replacement for characters not allowed in node names")
	uploadCmd.Flags().Int("retry-count", 0, "Retry count for retryable HTTP failures")
	uploadCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	uploadCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the whole upload")
}
