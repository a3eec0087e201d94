package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-orchestration/relay-core/channel"
	"github.com/relay-orchestration/relay-core/core/config"
	"github.com/relay-orchestration/relay-core/core/orchestrator"
	"github.com/relay-orchestration/relay-core/core/step"
	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/core/testutil"
)

// capture collects published messages in place of a live NATS connection.
type capture struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (c *capture) publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messages == nil {
		c.messages = make(map[string][][]byte)
	}
	c.messages[subject] = append(c.messages[subject], data)
	return nil
}

func (c *capture) count(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages[subject])
}

func (c *capture) get(subject string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[subject]
}

func newTestGateway(t *testing.T) (*Gateway, *capture) {
	t.Helper()

	cfg := config.DefaultCoreConfig()
	cfg.DefaultStep = "spy_step"
	cfg.RoutingRules = nil

	st := store.NewMemoryStore()
	registry := step.NewRegistry()
	registry.Register(testutil.NewSpyStep("spy_step"))
	ch := channel.NewInMemoryChannel(cfg.ObserverBufferSize, nil)
	t.Cleanup(ch.Close)

	orch := orchestrator.New(cfg, st, ch, registry, nil, nil)

	pub := &capture{}
	g := New(nil, orch, testutil.NewTestLogger())
	g.publish = pub.publish
	return g, pub
}

func startTask(t *testing.T, g *Gateway) string {
	t.Helper()
	reply := g.handleStart(mustMarshal(StartRequest{Description: "check invoice X", SessionID: "session-1"}))
	var resp StartResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	require.Nil(t, resp.Error)
	require.NotEmpty(t, resp.TaskID)
	return resp.TaskID
}

func TestHandleStart(t *testing.T) {
	g, pub := newTestGateway(t)
	taskID := startTask(t, g)

	// Events are forwarded to the task's subject.
	subject := EventSubject(taskID)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pub.count(subject) < 2 {
		time.Sleep(2 * time.Millisecond)
	}
	messages := pub.get(subject)
	require.GreaterOrEqual(t, len(messages), 2)

	var first channel.Event
	require.NoError(t, json.Unmarshal(messages[0], &first))
	assert.Equal(t, taskID, first.TaskID)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, channel.EventAgentMessage, first.Type)

	var second channel.Event
	require.NoError(t, json.Unmarshal(messages[1], &second))
	assert.Equal(t, channel.EventApprovalRequest, second.Type)
}

func TestHandleApproveAndClarify(t *testing.T) {
	g, _ := newTestGateway(t)
	taskID := startTask(t, g)

	reply := g.handleApprove(mustMarshal(ApproveRequest{TaskID: taskID, Approved: true}))
	var phase PhaseResponse
	require.NoError(t, json.Unmarshal(reply, &phase))
	require.Nil(t, phase.Error)
	assert.Equal(t, "awaiting_clarification", phase.Phase)

	reply = g.handleClarify(mustMarshal(ClarifyRequest{TaskID: taskID, Answer: "OK"}))
	require.NoError(t, json.Unmarshal(reply, &phase))
	require.Nil(t, phase.Error)
	assert.Equal(t, "completed", phase.Phase)
}

func TestHandleStatus(t *testing.T) {
	g, _ := newTestGateway(t)
	taskID := startTask(t, g)

	reply := g.handleStatus(mustMarshal(StatusRequest{TaskID: taskID}))
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(reply, &resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, taskID, resp.Status["task_id"])
	assert.Equal(t, "awaiting_approval", resp.Status["phase"])
}

func TestHandlerErrorMapping(t *testing.T) {
	g, _ := newTestGateway(t)
	taskID := startTask(t, g)

	tests := []struct {
		name     string
		reply    []byte
		wantCode string
	}{
		{"malformed json", g.handleStart([]byte("{not json")), "invalid_request"},
		{"missing description", g.handleStart(mustMarshal(StartRequest{SessionID: "s"})), "invalid_request"},
		{"unknown task", g.handleStatus(mustMarshal(StatusRequest{TaskID: "task_missing"})), "not_found"},
		{"clarify before approval", g.handleClarify(mustMarshal(ClarifyRequest{TaskID: taskID, Answer: "x"})), "unexpected_phase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp struct {
				Error *ErrorBody `json:"error"`
			}
			require.NoError(t, json.Unmarshal(tt.reply, &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "relay.task.events.task_abc", EventSubject("task_abc"))
}

func TestRequestValidation(t *testing.T) {
	assert.Error(t, (&StartRequest{}).Validate())
	assert.Error(t, (&StartRequest{Description: "x"}).Validate())
	assert.NoError(t, (&StartRequest{Description: "x", SessionID: "s"}).Validate())
	assert.Error(t, (&ApproveRequest{}).Validate())
	assert.NoError(t, (&ApproveRequest{TaskID: "t"}).Validate())
	assert.Error(t, (&ClarifyRequest{}).Validate())
	assert.Error(t, (&StatusRequest{}).Validate())
}
