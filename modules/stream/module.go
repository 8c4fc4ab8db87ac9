// Package stream provides a runner that emits job lifecycle events to a
// socket.io endpoint, so a dashboard can follow matrix runs live.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/matrixrun/internal/ctxlog"
	"github.com/vk/matrixrun/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the runner with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("stream", &runner{})
}

type runner struct{}

// opResult passes the outcome through the done channel.
type opResult struct {
	err error
}

// Run connects to the endpoint, emits one event carrying the job identity
// and any extra `with` arguments, and optionally waits for an acknowledgment
// event. Arguments: "url" (required), "namespace" (default "/"), "event"
// (default "job_event"), "ack_event" (optional), "timeout" (default 10s),
// "insecure_skip_verify" ("true" to skip TLS verification).
func (rn *runner) Run(ctx context.Context, sc *registry.StepContext) error {
	endpoint, err := sc.Arg("url")
	if err != nil {
		return err
	}

	namespace := sc.Args["namespace"]
	if namespace == "" {
		namespace = "/"
	}
	eventName := sc.Args["event"]
	if eventName == "" {
		eventName = "job_event"
	}
	ackEvent := sc.Args["ack_event"]

	logger := ctxlog.FromContext(ctx).With("runner", "stream", "url", endpoint, "event", eventName)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	timeout := 10 * time.Second
	if raw := sc.Args["timeout"]; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			logger.Warn("Failed to parse timeout, using default 10s", "inputTimeout", raw, "error", err)
		} else {
			timeout = parsed
		}
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	payload := map[string]any{
		"run":   sc.RunID,
		"job":   sc.JobID,
		"row":   sc.JobName,
		"stage": sc.Stage,
		"step":  sc.Step,
	}
	for k, v := range sc.Args {
		switch k {
		case "url", "namespace", "event", "ack_event", "timeout", "insecure_skip_verify":
		default:
			payload[k] = v
		}
	}

	var isConnected atomic.Bool
	done := make(chan opResult, 1)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if sc.Args["insecure_skip_verify"] == "true" {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Connected to event stream", "namespace", namespace, "sid", io.Id())
		io.Emit(eventName, payload)
		if ackEvent == "" {
			done <- opResult{}
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if err, ok := errs[0].(error); ok {
			done <- opResult{err: err}
			return
		}
		done <- opResult{err: fmt.Errorf("connect error: %v", errs[0])}
	})

	if ackEvent != "" {
		io.On(types.EventName(ackEvent), func(...any) {
			done <- opResult{}
		})
	}

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event '%s'", ackEvent)
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		return res.err
	}
}
