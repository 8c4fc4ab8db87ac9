// Package webhook provides a runner that POSTs a JSON notification about the
// current job to an HTTP endpoint, typically from a final notify stage.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the runner with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("webhook", &runner{
		client: &http.Client{Timeout: 30 * time.Second},
	})
}

// payload is the JSON document delivered to the endpoint.
type payload struct {
	Run      string            `json:"run"`
	Job      string            `json:"job"`
	Row      string            `json:"row"`
	Stage    string            `json:"stage"`
	Step     string            `json:"step"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type runner struct {
	client *http.Client
}

// Run delivers the notification. Arguments: "url" (required), "message"
// (optional free text). Any other `with` arguments are forwarded under
// "metadata". Non-2xx responses fail the step.
func (rn *runner) Run(ctx context.Context, sc *registry.StepContext) error {
	url, err := sc.Arg("url")
	if err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx).With("url", url)

	body := payload{
		Run:     sc.RunID,
		Job:     sc.JobID,
		Row:     sc.JobName,
		Stage:   sc.Stage,
		Step:    sc.Step,
		Message: sc.Args["message"],
	}
	for k, v := range sc.Args {
		if k == "url" || k == "message" {
			continue
		}
		if body.Metadata == nil {
			body.Metadata = make(map[string]string)
		}
		body.Metadata[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Info("Delivering webhook notification.", "bytes", len(encoded))

	resp, err := rn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned status: %s", resp.Status)
	}

	logger.Info("Webhook delivered.", "status", resp.Status)
	return nil
}
