// Package gateway exposes the orchestration facade over NATS.
//
// Request/reply subjects (JSON payloads):
//   - relay.task.start    StartRequest    -> StartResponse
//   - relay.task.approve  ApproveRequest  -> PhaseResponse
//   - relay.task.clarify  ClarifyRequest  -> PhaseResponse
//   - relay.task.status   StatusRequest   -> StatusResponse
//
// Events for a task are republished to relay.task.events.<task_id> as
// JSON-encoded channel.Event values, in sequence order.
package gateway

import (
	"encoding/json"
	"fmt"
)

// Subjects served by the gateway.
const (
	SubjectStart   = "relay.task.start"
	SubjectApprove = "relay.task.approve"
	SubjectClarify = "relay.task.clarify"
	SubjectStatus  = "relay.task.status"

	// EventSubjectPrefix is completed with the task ID.
	EventSubjectPrefix = "relay.task.events."
)

// EventSubject returns the event subject for a task.
func EventSubject(taskID string) string {
	return EventSubjectPrefix + taskID
}

// =============================================================================
// Requests
// =============================================================================

// StartRequest starts a new task.
type StartRequest struct {
	Description string `json:"description"`
	SessionID   string `json:"session_id"`
}

// Validate checks required fields.
func (r *StartRequest) Validate() error {
	if r.Description == "" {
		return fmt.Errorf("description is required")
	}
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

// ApproveRequest submits an approval decision.
type ApproveRequest struct {
	TaskID   string `json:"task_id"`
	Approved bool   `json:"approved"`
}

// Validate checks required fields.
func (r *ApproveRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	return nil
}

// ClarifyRequest submits a clarification answer.
type ClarifyRequest struct {
	TaskID string `json:"task_id"`
	Answer string `json:"answer"`
}

// Validate checks required fields.
func (r *ClarifyRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	return nil
}

// StatusRequest fetches a task's status.
type StatusRequest struct {
	TaskID string `json:"task_id"`
}

// Validate checks required fields.
func (r *StatusRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	return nil
}

// =============================================================================
// Responses
// =============================================================================

// ErrorBody carries a failed operation's code and message. Codes:
// invalid_request, not_found, unexpected_phase, concurrent_modification,
// rate_limited, internal.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StartResponse is the reply to StartRequest.
type StartResponse struct {
	TaskID string     `json:"task_id,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// PhaseResponse is the reply to ApproveRequest and ClarifyRequest.
type PhaseResponse struct {
	TaskID string     `json:"task_id,omitempty"`
	Phase  string     `json:"phase,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// StatusResponse is the reply to StatusRequest.
type StatusResponse struct {
	Status map[string]any `json:"status,omitempty"`
	Error  *ErrorBody     `json:"error,omitempty"`
}

// mustMarshal encodes a reply. The response types contain nothing that
// can fail to marshal; a failure here is a programming error surfaced as
// a minimal raw error body.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":{"code":"internal","message":"encode response"}}`)
	}
	return data
}
