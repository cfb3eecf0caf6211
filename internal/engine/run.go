package engine

// run.go - Execution orchestration for pipeline runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/leapstack-labs/leapgis/internal/resolver"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// RunOptions overrides engine defaults for one run.
type RunOptions struct {
	Timeout     time.Duration
	Concurrency int
}

// Report is the outcome of a run. Results follow caller order.
type Report struct {
	Run     *core.Run
	Results []core.Result
}

// Failed counts results that did not succeed.
func (r *Report) Failed() int {
	n := 0
	for i := range r.Results {
		if !r.Results[i].OK() {
			n++
		}
	}
	return n
}

// Invoke runs a single request.
func (s *Session) Invoke(ctx context.Context, req core.Request, opts RunOptions) core.Result {
	report, err := s.Run(ctx, []core.Request{req}, opts)
	if report != nil && len(report.Results) == 1 {
		return report.Results[0]
	}
	oe, ok := core.AsOperationError(err)
	if !ok {
		oe = &core.OperationError{Kind: core.KindEngineFailure, Err: err, Message: fmt.Sprint(err)}
	}
	return core.Result{RequestID: req.ID, Operation: req.Operation, Status: core.StatusFailed, Err: oe}
}

// Run executes a batch in two phases:
// Phase 1: validate and resolve every request (the batch fails atomically)
// Phase 2: execute the plan, independent requests concurrently
//
// A validation or resolution failure returns the joined errors and a report
// without results. Otherwise the error joins every failed result.
func (s *Session) Run(ctx context.Context, reqs []core.Request, opts RunOptions) (*Report, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	e := s.engine
	s.logger.Info("starting run", "steps", len(reqs))

	run, err := e.history.CreateRun(e.AdapterType(), len(reqs))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	report := &Report{Run: run}
	fail := func(err error) (*Report, error) {
		_ = e.history.CompleteRun(run.ID, core.RunStatusFailed, err.Error())
		s.logger.Error("run rejected", "run_id", run.ID, "error", err)
		if r, gerr := e.history.GetRun(run.ID); gerr == nil {
			report.Run = r
		}
		return report, err
	}

	// Phase 1
	validated, err := e.validator.ValidateAll(reqs)
	if err != nil {
		return fail(err)
	}
	plan, err := resolver.Resolve(validated, s.store)
	if err != nil {
		return fail(err)
	}
	if err := s.reserve(plan); err != nil {
		return fail(err)
	}

	// Phase 2
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = e.concurrency
	}
	results := s.execute(ctx, plan, timeout, int64(concurrency))
	report.Results = results

	var failures []error
	status := core.RunStatusCompleted
	for i := range results {
		res := &results[i]
		s.record(run.ID, res)
		switch res.Status {
		case core.StatusSuccess:
		case core.StatusCancelled:
			status = core.RunStatusCancelled
			failures = append(failures, res.Err)
		default:
			if status != core.RunStatusCancelled {
				status = core.RunStatusFailed
			}
			failures = append(failures, res.Err)
		}
	}

	runErr := errors.Join(failures...)
	msg := ""
	if runErr != nil {
		msg = failures[0].Error()
		s.logger.Info("run failed", "run_id", run.ID, "failed", len(failures))
	} else {
		s.logger.Info("run completed", "run_id", run.ID)
	}
	_ = e.history.CompleteRun(run.ID, status, msg)
	if r, gerr := e.history.GetRun(run.ID); gerr == nil {
		report.Run = r
	}
	return report, runErr
}

// reserve claims every named output so dependents can await it.
func (s *Session) reserve(plan *resolver.Plan) error {
	var reserved []string
	for _, n := range plan.Order {
		if !n.Named() {
			continue
		}
		if err := s.store.Reserve(n.Key); err != nil {
			for _, id := range reserved {
				s.store.Abandon(id, err)
			}
			if oe, ok := core.AsOperationError(err); ok {
				return oe.WithRequest(string(n.Request.Operation()), n.Key)
			}
			return err
		}
		reserved = append(reserved, n.Key)
	}
	return nil
}

// execute schedules one goroutine per node. A node waits for its in-batch
// producers, then for a concurrency slot.
func (s *Session) execute(ctx context.Context, plan *resolver.Plan, timeout time.Duration, concurrency int64) []core.Result {
	results := make([]core.Result, len(plan.Order))
	sem := semaphore.NewWeighted(concurrency)

	var g errgroup.Group
	for _, n := range plan.Order {
		g.Go(func() error {
			res := s.executeNode(ctx, n, sem, timeout)
			if res.RequestID == "" && res.Layer != nil {
				res.RequestID = res.Layer.ID
			}
			results[n.Index] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Session) executeNode(ctx context.Context, n *resolver.Node, sem *semaphore.Weighted, timeout time.Duration) core.Result {
	for _, parent := range n.Parents {
		if _, err := s.store.Await(ctx, parent); err != nil {
			if ctx.Err() != nil {
				return s.notStarted(n, ctx.Err())
			}
			return s.skip(n, parent, err)
		}
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return s.notStarted(n, err)
	}
	defer sem.Release(1)
	if err := ctx.Err(); err != nil {
		return s.notStarted(n, err)
	}

	s.logger.Debug("dispatching", "request", n.Key, "operation", n.Request.Operation())
	return s.dispatcher.DispatchTimeout(ctx, n.Request, timeout)
}

// skip reports a node whose producer failed. The node's own output is
// abandoned so its dependents are skipped in turn.
func (s *Session) skip(n *resolver.Node, parent string, cause error) core.Result {
	oe := &core.OperationError{
		Kind:    core.KindOf(cause),
		Message: fmt.Sprintf("skipped: upstream %q failed", parent),
		Err:     cause,
	}
	oe = oe.WithRequest(string(n.Request.Operation()), n.Request.ID())
	if n.Named() {
		s.store.Abandon(n.Key, oe)
	}
	return core.Result{
		RequestID: n.Request.ID(),
		Operation: string(n.Request.Operation()),
		Status:    core.StatusSkipped,
		Err:       oe,
	}
}

// notStarted reports a node that was never dispatched because the run was cancelled.
func (s *Session) notStarted(n *resolver.Node, cause error) core.Result {
	kind := core.KindEngineFailure
	if errors.Is(cause, context.DeadlineExceeded) {
		kind = core.KindTimeout
	}
	oe := (&core.OperationError{Kind: kind, Message: "cancelled before dispatch", Err: cause}).
		WithRequest(string(n.Request.Operation()), n.Request.ID())
	if n.Named() {
		s.store.Abandon(n.Key, oe)
	}
	return core.Result{
		RequestID: n.Request.ID(),
		Operation: string(n.Request.Operation()),
		Status:    core.StatusCancelled,
		Err:       oe,
	}
}

// record writes one result into run history. History failures are logged,
// never surfaced: the run itself already happened.
func (s *Session) record(runID string, res *core.Result) {
	now := time.Now().UTC()
	opRun := &core.OperationRun{
		RunID:       runID,
		RequestID:   res.RequestID,
		Operation:   res.Operation,
		Status:      res.Status,
		Attempts:    res.Attempts,
		Repaired:    res.Repaired,
		StartedAt:   now.Add(-res.Duration),
		CompletedAt: &now,
		ExecutionMS: res.Duration.Milliseconds(),
	}
	if res.Layer != nil {
		opRun.LayerID = res.Layer.ID
		if err := s.engine.history.RecordLayer(runID, res.Layer); err != nil {
			s.logger.Warn("failed to record layer", "layer", res.Layer.ID, "error", err)
		}
	}
	if res.Err != nil {
		opRun.ErrorKind = string(res.Err.Kind)
		opRun.Error = res.Err.Error()
	}
	if err := s.engine.history.RecordOperationRun(opRun); err != nil {
		s.logger.Warn("failed to record operation run", "request", res.RequestID, "error", err)
	}
}
