// Package artifact provides a runner that uploads a file produced by the job
// (coverage reports, wheels, logs) to a pre-signed URL via HTTP PUT.
package artifact

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared across uploads to reuse TCP connections.
var httpClient = &http.Client{}

// Register registers the runner with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("artifact", &runner{})
}

type runner struct{}

// Run uploads one file. Arguments: "source_path" (relative paths resolve
// against the job workdir) and "upload_url" (a pre-signed PUT URL).
func (rn *runner) Run(ctx context.Context, sc *registry.StepContext) error {
	sourcePath, err := sc.Arg("source_path")
	if err != nil {
		return err
	}
	uploadURL, err := sc.Arg("upload_url")
	if err != nil {
		return err
	}
	if !filepath.IsAbs(sourcePath) {
		sourcePath = filepath.Join(sc.Workdir, sourcePath)
	}

	logger := ctxlog.FromContext(ctx).With("source", sourcePath)

	file, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact '%s': %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact '%s': %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading artifact.", "size", stat.Size(), "contentType", contentType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact upload failed with status: %s", resp.Status)
	}

	logger.Info("Artifact uploaded.", "status", resp.Status)
	return nil
}
