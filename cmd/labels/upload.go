package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/tog-labels/internal/config"
	"github.com/jonathan/tog-labels/internal/observability"
	"github.com/jonathan/tog-labels/internal/pipeline"
	"github.com/jonathan/tog-labels/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a dataset",
}

var uploadTogCmd = &cobra.Command{
	Use:   "tog",
	Short: "Upload a CSV dataset to a tog job",
	Long: "Validate every row of a CSV dataset against the upload schema and post the valid rows " +
		"to the dataset server in batches. The input path may also be piped in on stdin.",
	RunE: runUploadTog,
}

var (
	uploadURL       string
	uploadToken     string
	uploadInput     string
	uploadJobID     int64
	uploadSource    string
	uploadBatchSize int
	uploadChunkSize int
)

// requestTimeout bounds a single batch request.
const requestTimeout = 5 * time.Minute

func init() {
	uploadTogCmd.Flags().StringVar(&uploadURL, "url", "", "URL of the dataset server (env DATASET_SERVER_URL)")
	uploadTogCmd.Flags().StringVar(&uploadToken, "token", "", "Organization auth token (default: ~/.skit/token)")
	uploadTogCmd.Flags().StringVarP(&uploadInput, "input", "i", "", "CSV file to upload, or piped on stdin")
	uploadTogCmd.Flags().Int64VarP(&uploadJobID, "job-id", "j", 0, "Id of the tog job to upload into (required)")
	uploadTogCmd.Flags().StringVar(&uploadSource, "source", "", "data_source stamped on every item (default calls)")
	uploadTogCmd.Flags().IntVar(&uploadBatchSize, "batch-size", 0, fmt.Sprintf("Items per request (default %d)", upload.DefaultBatchSize))
	uploadTogCmd.Flags().IntVar(&uploadChunkSize, "chunk-size", 0, fmt.Sprintf("Requests in flight at once (default %d)", upload.DefaultChunkSize))
	_ = uploadTogCmd.MarkFlagRequired("job-id")

	uploadCmd.AddCommand(uploadTogCmd)
	rootCmd.AddCommand(uploadCmd)
}

var errNoInput = errors.New("expected to receive --input=<file> or its value piped in")

func runUploadTog(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(config.Config{
		ServerURL:       uploadURL,
		Token:           uploadToken,
		Source:          uploadSource,
		UploadBatchSize: uploadBatchSize,
		ChunkSize:       uploadChunkSize,
	})
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	if cfg.Token == "" {
		if home, err := os.UserHomeDir(); err == nil {
			if cfg.Token, err = config.ReadSession(home); err != nil {
				return err
			}
		}
	}
	if cfg.Token == "" {
		return &config.Error{Field: "token", Message: "is required for uploading, pass --token or save one to ~/.skit/token"}
	}
	if cfg.ServerURL == "" {
		return &config.Error{Field: "url", Message: "is required, pass --url or set " + config.EnvServerURL}
	}

	input := uploadInput
	if input == "" {
		if stdinIsTerminal() {
			return errNoInput
		}
		if input, err = readInputPath(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	uploader := upload.New(&http.Client{Timeout: requestTimeout}, cfg.ServerURL, cfg.Token, log)
	uploader.BatchSize = cfg.UploadBatchSize
	uploader.ChunkSize = cfg.ChunkSize

	result, err := pipeline.Upload(cmd.Context(), input, uploader, uploadJobID, cfg.Source, nil, log)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintUploadErrors(result)
	return nil
}

// stdinIsTerminal reports whether nothing is piped into the process.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	return err != nil || info.Mode()&os.ModeCharDevice != 0
}

// readInputPath reads the first line of r as the input file path.
func readInputPath(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input path from stdin: %w", err)
	}
	path := strings.TrimSpace(line)
	if path == "" {
		return "", errNoInput
	}
	return path, nil
}
