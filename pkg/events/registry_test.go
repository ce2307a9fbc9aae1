package events

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connectTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func nextMsg(t *testing.T, ch chan *nats.Msg) *nats.Msg {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for case event")
		return nil
	}
}

func finishedCase(status pipeline.Status) *pipeline.ErrorCase {
	ec := pipeline.NewCase(logsource.LogEntry{Service: "billing", Severity: logsource.SeverityError})
	ec.Status = status
	return ec
}

func TestRegistry_TracksWithoutNATS(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ec := finishedCase(pipeline.StatusComplete)

	reg.Progress(pipeline.ProgressEvent{CaseID: ec.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageStarted})
	reg.Progress(pipeline.ProgressEvent{CaseID: ec.ID, Stage: pipeline.StageErrorLocator, Status: pipeline.StageStarted})

	rec, err := reg.Get(ec.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusInProgress, rec.Status)
	assert.Equal(t, pipeline.StageErrorLocator, rec.Stage)
	assert.Nil(t, rec.Case)

	reg.Finish(ec)

	rec, err = reg.Get(ec.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusComplete, rec.Status)
	assert.Equal(t, "billing", rec.Service)
	assert.Same(t, ec, rec.Case)
}

func TestRegistry_GetUnknownCase(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_, err := reg.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case not found")
}

func TestRegistry_PublishesLifecycleEvents(t *testing.T) {
	nc := connectTestNATS(t)
	reg := NewRegistry(nc, nil)
	ec := finishedCase(pipeline.StatusComplete)

	ch := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe(AllSubjects(ec.ID), ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	reg.Progress(pipeline.ProgressEvent{CaseID: ec.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageStarted})
	reg.Progress(pipeline.ProgressEvent{CaseID: ec.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageCompleted, Duration: 5 * time.Millisecond})
	reg.Finish(ec)

	// started precedes the first stage event
	msg := nextMsg(t, ch)
	assert.Equal(t, Subject(ec.ID, EventStarted), msg.Subject)
	var started StartedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &started))
	assert.Equal(t, ec.ID, started.CaseID)

	msg = nextMsg(t, ch)
	assert.Equal(t, Subject(ec.ID, EventStage), msg.Subject)
	var ev pipeline.ProgressEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, pipeline.StageLogAnalyzer, ev.Stage)
	assert.Equal(t, pipeline.StageStarted, ev.Status)

	msg = nextMsg(t, ch)
	assert.Equal(t, Subject(ec.ID, EventStage), msg.Subject)
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, pipeline.StageCompleted, ev.Status)

	// the terminal event carries the whole case
	msg = nextMsg(t, ch)
	assert.Equal(t, Subject(ec.ID, EventCompleted), msg.Subject)
	var got pipeline.ErrorCase
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, ec.ID, got.ID)
	assert.Equal(t, pipeline.StatusComplete, got.Status)
}

func TestRegistry_FailedRunPublishesFailed(t *testing.T) {
	nc := connectTestNATS(t)
	reg := NewRegistry(nc, nil)

	ec := finishedCase(pipeline.StatusPartialFailure)
	ec.FailureStage = pipeline.StageSolutionArchitect
	ec.FailureReason = "completion failed after 2 attempts"

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(Subject(ec.ID, EventFailed), ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	reg.Finish(ec)

	msg := nextMsg(t, ch)
	var got pipeline.ErrorCase
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, pipeline.StatusPartialFailure, got.Status)
	assert.Equal(t, pipeline.StageSolutionArchitect, got.FailureStage)

	rec, err := reg.Get(ec.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageSolutionArchitect, rec.Stage)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	reg := NewRegistry(nil, nil)

	first := finishedCase(pipeline.StatusComplete)
	reg.Progress(pipeline.ProgressEvent{CaseID: first.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageStarted})
	time.Sleep(10 * time.Millisecond)
	second := finishedCase(pipeline.StatusComplete)
	reg.Progress(pipeline.ProgressEvent{CaseID: second.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageStarted})

	records := reg.List()
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)
}

func TestRegistry_PublishFailureOnlyLogs(t *testing.T) {
	nc := connectTestNATS(t)
	reg := NewRegistry(nc, nil)
	ec := finishedCase(pipeline.StatusComplete)

	// Close the connection to force publish failures
	nc.Close()

	reg.Progress(pipeline.ProgressEvent{CaseID: ec.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageStarted})
	reg.Finish(ec)

	// tracking is unaffected by a dead connection
	rec, err := reg.Get(ec.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusComplete, rec.Status)
}
