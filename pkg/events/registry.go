// Package events tracks remediation cases in memory and publishes their
// lifecycle to NATS for external observers.
//
// Case events are published to subjects:
//
//   - cases.{case_id}.started
//   - cases.{case_id}.stage
//   - cases.{case_id}.completed
//   - cases.{case_id}.failed
//
// The registry is written to be wired as a pipeline.ProgressFunc plus a
// Finish call with the returned case; publication is optional and the
// registry works without a NATS connection.
package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
)

// Case event names, the final token of the NATS subject.
const (
	EventStarted   = "started"
	EventStage     = "stage"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// caseTTL is how long finished cases stay in the registry.
const caseTTL = 1 * time.Hour

// Subject returns the NATS subject for one event of one case.
func Subject(caseID, event string) string {
	return fmt.Sprintf("cases.%s.%s", caseID, event)
}

// AllSubjects returns the wildcard subject matching every event of a case.
func AllSubjects(caseID string) string {
	return fmt.Sprintf("cases.%s.*", caseID)
}

// StartedEvent is the payload of the started event, published when the
// first stage transition of a case is observed.
type StartedEvent struct {
	CaseID    string    `json:"case_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CaseRecord is the registry's view of one remediation case. While the
// run is in flight it tracks the current stage; after Finish it carries
// the full terminal case.
type CaseRecord struct {
	ID        string              `json:"id"`
	Service   string              `json:"service,omitempty"`
	Status    pipeline.Status     `json:"status"`
	Stage     string              `json:"stage,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Case      *pipeline.ErrorCase `json:"case,omitempty"`
}

// caseRecord guards one CaseRecord for concurrent readers.
type caseRecord struct {
	mu  sync.Mutex
	rec CaseRecord
}

// Registry tracks cases in memory for fast lookups and publishes case
// events to NATS for streaming. Both halves are independent: with a nil
// connection the registry only tracks, and failed publishes only log so
// observers can never affect a run.
//
// Example usage:
//
//	reg := events.NewRegistry(nc, logger)
//	o, err := pipeline.New(cfg, completer, searcher, stager,
//		pipeline.WithProgress(reg.Progress))
//	...
//	ec := o.Run(ctx, entry)
//	reg.Finish(ec)
type Registry struct {
	nc     *nats.Conn
	logger *zap.Logger
	cases  sync.Map // case_id -> *caseRecord
}

// NewRegistry creates a case registry. The connection may be nil for a
// tracking-only registry; a nil logger falls back to a no-op logger.
func NewRegistry(nc *nats.Conn, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{nc: nc, logger: logger}
}

// Progress records one stage transition. The first transition of a case
// creates its record and publishes the started event; every transition is
// published as a stage event.
func (r *Registry) Progress(ev pipeline.ProgressEvent) {
	now := time.Now().UTC()
	value, loaded := r.cases.LoadOrStore(ev.CaseID, &caseRecord{rec: CaseRecord{
		ID:        ev.CaseID,
		Status:    pipeline.StatusInProgress,
		CreatedAt: now,
	}})
	cr := value.(*caseRecord)
	cr.mu.Lock()
	cr.rec.Stage = ev.Stage
	cr.rec.UpdatedAt = now
	cr.mu.Unlock()

	if !loaded {
		r.publish(ev.CaseID, EventStarted, StartedEvent{CaseID: ev.CaseID, Timestamp: now})
	}
	r.publish(ev.CaseID, EventStage, ev)
}

// Finish records the terminal case and publishes the completed or failed
// event with the full case as payload. It must be called after the run
// has returned; the case is treated as immutable from then on. The record
// is dropped from the registry after the retention window.
func (r *Registry) Finish(ec *pipeline.ErrorCase) {
	if ec == nil {
		return
	}
	now := time.Now().UTC()
	value, _ := r.cases.LoadOrStore(ec.ID, &caseRecord{rec: CaseRecord{
		ID:        ec.ID,
		CreatedAt: now,
	}})
	cr := value.(*caseRecord)
	cr.mu.Lock()
	cr.rec.Status = ec.Status
	cr.rec.Service = ec.SourceLog.Service
	if ec.FailureStage != "" {
		cr.rec.Stage = ec.FailureStage
	}
	cr.rec.UpdatedAt = now
	cr.rec.Case = ec
	cr.mu.Unlock()

	event := EventCompleted
	if ec.Status != pipeline.StatusComplete {
		event = EventFailed
	}
	r.publish(ec.ID, event, ec)

	go r.expire(ec.ID, caseTTL)
}

// Get retrieves a snapshot of one case record.
func (r *Registry) Get(id string) (CaseRecord, error) {
	value, ok := r.cases.Load(id)
	if !ok {
		return CaseRecord{}, fmt.Errorf("case not found: %s", id)
	}
	cr := value.(*caseRecord)
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.rec, nil
}

// List returns snapshots of every tracked case, newest first.
func (r *Registry) List() []CaseRecord {
	var out []CaseRecord
	r.cases.Range(func(_, value any) bool {
		cr := value.(*caseRecord)
		cr.mu.Lock()
		out = append(out, cr.rec)
		cr.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// publish marshals and publishes one event. Publication is best effort:
// failures log and the registry stays consistent.
func (r *Registry) publish(caseID, event string, payload any) {
	if r.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("case event not published",
			zap.String("case_id", caseID),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	if err := r.nc.Publish(Subject(caseID, event), data); err != nil {
		r.logger.Warn("case event not published",
			zap.String("case_id", caseID),
			zap.String("event", event),
			zap.Error(err))
	}
}

// expire removes a finished case after the retention window so the
// registry does not grow without bound.
func (r *Registry) expire(id string, ttl time.Duration) {
	time.Sleep(ttl)
	r.cases.Delete(id)
}
