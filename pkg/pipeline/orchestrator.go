package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
)

var tracer = otel.Tracer("remedyd/pipeline")

// ProgressEvent reports one stage lifecycle transition. Every stage emits
// a started event before running and a completed or failed event after,
// with its duration.
type ProgressEvent struct {
	CaseID   string        `json:"case_id"`
	Stage    string        `json:"stage"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// ProgressFunc receives progress events during a run. It is called from
// the run's goroutine and should return quickly.
type ProgressFunc func(ProgressEvent)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithMemory wires a remediation memory: past fixes feed the architect
// prompt and completed runs are recorded for future recall.
func WithMemory(m Memory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// Orchestrator runs the five stages in strict order over a shared case.
// It only iterates the stage list; no decision branches on a concrete
// stage type.
type Orchestrator struct {
	cfg      Config
	stages   []Stage
	memory   Memory
	progress ProgressFunc
	logger   *zap.Logger
	metrics  *Metrics
}

// New builds an orchestrator with the standard stage order: LogAnalyzer,
// ErrorLocator, SolutionArchitect, CodeGenerator, GitManager.
func New(cfg Config, completer Completer, searcher Searcher, stager Stager, opts ...Option) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if stager == nil {
		return nil, fmt.Errorf("stager is required")
	}

	o := &Orchestrator{
		cfg:     cfg,
		logger:  zap.NewNop(),
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}

	var recaller Recaller
	if o.memory != nil {
		recaller = o.memory
	}
	o.stages = []Stage{
		NewLogAnalyzer(o.logger),
		NewErrorLocator(searcher, completer, cfg, o.logger),
		NewSolutionArchitect(completer, recaller, cfg, o.logger),
		NewCodeGenerator(completer, cfg, o.logger),
		NewGitManager(stager, o.logger),
	}
	return o, nil
}

// Run processes one log entry end to end. It always returns a case in a
// terminal state and never returns an error: a stage failure ends the run
// early with everything earlier stages produced still on the case.
func (o *Orchestrator) Run(ctx context.Context, entry logsource.LogEntry) *ErrorCase {
	ec := NewCase(entry)
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("case.id", ec.ID),
		attribute.String("log.service", entry.Service),
		attribute.String("log.severity", string(entry.Severity)),
	)

	start := time.Now()
	ec.Status = StatusInProgress
	o.logger.Info("remediation run started",
		zap.String("case_id", ec.ID),
		zap.String("service", entry.Service),
		zap.String("severity", string(entry.Severity)))

	completed := 0
	for _, st := range o.stages {
		if err := ctx.Err(); err != nil {
			o.failCase(ec, completed, st.Name(), fmt.Errorf("canceled before %s: %w", st.Name(), err))
			break
		}
		if err := o.runStage(ctx, st, ec); err != nil {
			o.failCase(ec, completed, st.Name(), err)
			break
		}
		completed++
	}
	if completed == len(o.stages) {
		ec.Status = StatusComplete
		o.recordFix(ctx, ec)
	}

	elapsed := time.Since(start)
	o.metrics.ObserveRun(string(ec.Status), elapsed)
	span.SetAttributes(attribute.String("case.status", string(ec.Status)))
	if ec.Status == StatusComplete {
		span.SetStatus(codes.Ok, "")
		o.logger.Info("remediation run complete",
			zap.String("case_id", ec.ID),
			zap.Duration("duration", elapsed))
	} else {
		span.SetStatus(codes.Error, ec.FailureReason)
		o.logger.Warn("remediation run ended early",
			zap.String("case_id", ec.ID),
			zap.String("status", string(ec.Status)),
			zap.String("failure_stage", ec.FailureStage),
			zap.String("failure_reason", ec.FailureReason),
			zap.Duration("duration", elapsed))
	}
	return ec
}

// runStage executes one stage with its span, events, metrics, and result
// record.
func (o *Orchestrator) runStage(ctx context.Context, st Stage, ec *ErrorCase) error {
	name := st.Name()
	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now().UTC()
	o.emit(ProgressEvent{CaseID: ec.ID, Stage: name, Status: StageStarted})

	err := st.Run(ctx, ec)
	elapsed := time.Since(start)
	result := StageResult{
		Stage:       name,
		StartedAt:   start,
		CompletedAt: start.Add(elapsed),
	}

	if err != nil {
		result.Status = StageFailed
		result.Err = err.Error()
		ec.StageResults = append(ec.StageResults, result)
		o.metrics.ObserveStage(name, elapsed, false)
		o.emit(ProgressEvent{CaseID: ec.ID, Stage: name, Status: StageFailed, Duration: elapsed, Err: err.Error()})
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		o.logger.Error("stage failed",
			zap.String("case_id", ec.ID),
			zap.String("stage", name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return err
	}

	result.Status = StageCompleted
	ec.StageResults = append(ec.StageResults, result)
	o.metrics.ObserveStage(name, elapsed, true)
	o.emit(ProgressEvent{CaseID: ec.ID, Stage: name, Status: StageCompleted, Duration: elapsed})
	span.SetStatus(codes.Ok, "")
	o.logger.Debug("stage completed",
		zap.String("case_id", ec.ID),
		zap.String("stage", name),
		zap.Duration("duration", elapsed))
	return nil
}

// failCase resolves the terminal status: a failure before anything
// completed is failed, a failure after at least one completed stage is
// partial_failure.
func (o *Orchestrator) failCase(ec *ErrorCase, completed int, stage string, err error) {
	if completed == 0 {
		ec.Status = StatusFailed
	} else {
		ec.Status = StatusPartialFailure
	}
	ec.FailureStage = stage
	ec.FailureReason = err.Error()
}

// recordFix stores the completed remediation in memory for future recall.
// Recording is best effort; failures only log.
func (o *Orchestrator) recordFix(ctx context.Context, ec *ErrorCase) {
	if o.memory == nil || ec.Analysis == nil || ec.Solution == nil {
		return
	}
	fix, err := knowledge.NewFix(o.cfg.RepoPath, ec.Analysis.NormalizedMessage, ec.Analysis.ErrorType, ec.Solution.Description)
	if err != nil {
		o.logger.Warn("fix not recorded", zap.String("case_id", ec.ID), zap.Error(err))
		return
	}
	if ec.GitResult != nil && ec.GitResult.BranchName != "" {
		fix.Metadata = map[string]string{"branch": ec.GitResult.BranchName}
	}
	if err := o.memory.Record(ctx, fix); err != nil {
		o.logger.Warn("fix not recorded", zap.String("case_id", ec.ID), zap.Error(err))
		return
	}
	o.logger.Debug("fix recorded", zap.String("case_id", ec.ID), zap.String("fix_id", fix.ID))
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.progress != nil {
		o.progress(ev)
	}
}
