package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/relay-orchestration/relay-core/channel"
	"github.com/relay-orchestration/relay-core/core/orchestrator"
	"github.com/relay-orchestration/relay-core/core/task"
)

// Logger is the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, keysAndValues ...any) {}
func (nopLogger) Info(msg string, keysAndValues ...any)  {}
func (nopLogger) Warn(msg string, keysAndValues ...any)  {}
func (nopLogger) Error(msg string, keysAndValues ...any) {}

// =============================================================================
// Gateway
// =============================================================================

// Gateway serves the facade operations over NATS request/reply and
// forwards each started task's channel events to its event subject.
// The core never depends on the gateway; it is optional at runtime.
type Gateway struct {
	nc      *nats.Conn
	orch    *orchestrator.Orchestrator
	logger  Logger
	publish func(subject string, data []byte) error
	subs    []*nats.Subscription
}

// New creates a Gateway over an established NATS connection.
func New(nc *nats.Conn, orch *orchestrator.Orchestrator, logger Logger) *Gateway {
	if logger == nil {
		logger = nopLogger{}
	}
	g := &Gateway{nc: nc, orch: orch, logger: logger}
	if nc != nil {
		g.publish = nc.Publish
	}
	return g
}

// Start subscribes the request/reply handlers.
func (g *Gateway) Start() error {
	handlers := map[string]func([]byte) []byte{
		SubjectStart:   g.handleStart,
		SubjectApprove: g.handleApprove,
		SubjectClarify: g.handleClarify,
		SubjectStatus:  g.handleStatus,
	}
	for subject, handler := range handlers {
		h := handler
		sub, err := g.nc.Subscribe(subject, func(msg *nats.Msg) {
			if err := msg.Respond(h(msg.Data)); err != nil {
				g.logger.Error("gateway_respond_failed", "subject", msg.Subject, "error", err)
			}
		})
		if err != nil {
			g.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		g.subs = append(g.subs, sub)
	}
	g.logger.Info("gateway_started", "subjects", len(g.subs))
	return nil
}

// Close drains the gateway's subscriptions. The NATS connection itself
// belongs to the caller.
func (g *Gateway) Close() {
	for _, sub := range g.subs {
		if err := sub.Unsubscribe(); err != nil {
			g.logger.Warn("gateway_unsubscribe_failed", "error", err)
		}
	}
	g.subs = nil
}

// =============================================================================
// Handlers
// =============================================================================

func (g *Gateway) handleStart(data []byte) []byte {
	var req StartRequest
	if body := decode(data, &req); body != nil {
		return mustMarshal(StartResponse{Error: body})
	}

	ctx := context.Background()
	taskID, err := g.orch.StartTask(ctx, req.Description, req.SessionID)
	if err != nil {
		return mustMarshal(StartResponse{Error: errorBody(err)})
	}

	// Forward this task's events for the lifetime of its buffer.
	if err := g.orch.Subscribe(ctx, taskID, "nats-forwarder", g.forwarder(taskID), 0); err != nil {
		g.logger.Warn("event_forwarding_unavailable", "task_id", taskID, "error", err)
	}

	return mustMarshal(StartResponse{TaskID: taskID})
}

func (g *Gateway) handleApprove(data []byte) []byte {
	var req ApproveRequest
	if body := decode(data, &req); body != nil {
		return mustMarshal(PhaseResponse{Error: body})
	}

	phase, err := g.orch.SubmitApproval(context.Background(), req.TaskID, req.Approved)
	if err != nil {
		return mustMarshal(PhaseResponse{TaskID: req.TaskID, Error: errorBody(err)})
	}
	return mustMarshal(PhaseResponse{TaskID: req.TaskID, Phase: string(phase)})
}

func (g *Gateway) handleClarify(data []byte) []byte {
	var req ClarifyRequest
	if body := decode(data, &req); body != nil {
		return mustMarshal(PhaseResponse{Error: body})
	}

	phase, err := g.orch.SubmitClarification(context.Background(), req.TaskID, req.Answer)
	if err != nil {
		return mustMarshal(PhaseResponse{TaskID: req.TaskID, Error: errorBody(err)})
	}
	return mustMarshal(PhaseResponse{TaskID: req.TaskID, Phase: string(phase)})
}

func (g *Gateway) handleStatus(data []byte) []byte {
	var req StatusRequest
	if body := decode(data, &req); body != nil {
		return mustMarshal(StatusResponse{Error: body})
	}

	status, err := g.orch.GetTaskStatus(context.Background(), req.TaskID)
	if err != nil {
		return mustMarshal(StatusResponse{Error: errorBody(err)})
	}
	return mustMarshal(StatusResponse{Status: status})
}

// =============================================================================
// Event Forwarding
// =============================================================================

// forwarder returns an observer that republishes a task's events.
// Publish failures are logged and dropped; replay-on-reconnect is the
// consumer's recovery path, same as any other observer.
func (g *Gateway) forwarder(taskID string) channel.Observer {
	subject := EventSubject(taskID)
	return channel.ObserverFunc(func(event channel.Event) {
		data, err := json.Marshal(event)
		if err != nil {
			g.logger.Error("event_encode_failed", "task_id", taskID, "error", err)
			return
		}
		if err := g.publish(subject, data); err != nil {
			g.logger.Warn("event_publish_failed",
				"task_id", taskID, "seq", event.Seq, "error", err)
		}
	})
}

// =============================================================================
// Error Mapping
// =============================================================================

type validator interface {
	Validate() error
}

// decode unmarshals and validates a request, returning an error body on
// failure.
func decode(data []byte, req validator) *ErrorBody {
	if err := json.Unmarshal(data, req); err != nil {
		return &ErrorBody{Code: "invalid_request", Message: "malformed JSON: " + err.Error()}
	}
	if err := req.Validate(); err != nil {
		return &ErrorBody{Code: "invalid_request", Message: err.Error()}
	}
	return nil
}

// errorBody maps core errors onto wire codes.
func errorBody(err error) *ErrorBody {
	code := "internal"
	switch {
	case task.IsNotFound(err):
		code = "not_found"
	case task.IsUnexpectedPhase(err):
		code = "unexpected_phase"
	case task.IsConcurrentModification(err):
		code = "concurrent_modification"
	case orchestrator.IsRateLimited(err):
		code = "rate_limited"
	}
	return &ErrorBody{Code: code, Message: err.Error()}
}
