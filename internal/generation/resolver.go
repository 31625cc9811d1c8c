package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultMaxImageBytes = 32 * 1024 * 1024

// Resolver materializes an extracted image reference into a local file. Data
// URIs are decoded in place; remote addresses are fetched over the network.
type Resolver struct {
	outputDir  string
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

// NewResolver creates a Resolver rooted at outputDir, creating it if needed.
func NewResolver(outputDir string, client *http.Client, maxBytes int64, logger *zap.Logger) (*Resolver, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		outputDir:  outputDir,
		httpClient: client,
		maxBytes:   maxBytes,
		logger:     logger,
	}, nil
}

// Materialize resolves the reference to raw bytes and writes them to a path
// derived from the request id. It returns the path and the bytes so callers
// can hand the same content to the blob uploader without re-reading.
func (r *Resolver) Materialize(ctx context.Context, requestID, reference string) (string, []byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(reference, "data:"):
		data, err = decodeDataURI(reference)
	case strings.HasPrefix(reference, "http://"), strings.HasPrefix(reference, "https://"):
		data, err = r.fetch(ctx, reference)
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnrecognizedReference, truncate(reference, 64))
	}
	if err != nil {
		return "", nil, err
	}

	target := filepath.Join(r.outputDir, ImageFileName(requestID))
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", nil, fmt.Errorf("write image %s: %w", target, err)
	}
	r.logger.Info("image stored",
		zap.String("request_id", requestID),
		zap.String("path", target),
		zap.Int("bytes", len(data)),
	)
	return target, data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data URI", ErrUnrecognizedReference)
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: only base64 data URIs are supported", ErrUnrecognizedReference)
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrUnrecognizedReference, err)
	}
	return data, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Warn("close image response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("image size exceeds max %d bytes", r.maxBytes)
	}
	return data, nil
}
