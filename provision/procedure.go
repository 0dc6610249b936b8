// Package provision runs the one-shot bootstrap of a database: select it,
// create the application user, create the planned collections and build the
// planned indexes, strictly in that order, then announce completion.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"elisedb/metrics"
	"elisedb/schema"
	"elisedb/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// CompletionMessage is written to the output once every step succeeded
const CompletionMessage = "MongoDB initialization completed successfully!"

// Step names, also used as span and metric labels
const (
	StepSelectDatabase   = "select-database"
	StepCreateUser       = "create-user"
	StepCreateCollection = "create-collection"
	StepCreateIndex      = "create-index"
	StepComplete         = "complete"
)

// SpanPrefix prefixes the span name of every step
const SpanPrefix = "elisedb.provision/"

// ErrAlreadyRun is returned when Run is called on a procedure that has
// already started.
var ErrAlreadyRun = errors.New("procedure already run")

// State is the lifecycle of a Procedure
type State int

const (
	StateNotRun State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotRun:
		return "not-run"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StepError reports the operation that aborted a run. It unwraps to the
// storage error so callers can match the failure kind with errors.Is.
type StepError struct {
	Step   string
	Target string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Step, e.Target, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// PlannedStep is one operation of a run, before it executes
type PlannedStep struct {
	Name   string `json:"step"`
	Target string `json:"target"`
}

// StepResult is one acknowledged operation
type StepResult struct {
	Name   string        `json:"step"`
	Target string        `json:"target"`
	Took   time.Duration `json:"took_ns"`
}

// Report describes a successful run
type Report struct {
	RunID     string        `json:"run_id"`
	Database  string        `json:"database"`
	User      string        `json:"user"`
	StartedAt time.Time     `json:"started_at"`
	Steps     []StepResult  `json:"steps"`
	Took      time.Duration `json:"took_ns"`
}

// Option configures a Procedure
type Option func(*Procedure)

// WithOutput sets where the completion message is written (stdout by default)
func WithOutput(w io.Writer) Option {
	return func(p *Procedure) { p.out = w }
}

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(p *Procedure) { p.logger = logger }
}

// WithTracerProvider sets the provider the step spans are started from
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Procedure) { p.tracer = tp.Tracer("elisedb/provision") }
}

// WithProgress registers a callback invoked before each step starts
func WithProgress(fn func(step PlannedStep, index, total int)) Option {
	return func(p *Procedure) { p.progress = fn }
}

type step struct {
	PlannedStep
	exec func(ctx context.Context) error
}

// Procedure is a single bootstrap run. It is not safe for concurrent use and
// runs at most once.
type Procedure struct {
	admin  storage.Admin
	plan   schema.Plan
	secret string

	out      io.Writer
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	progress func(step PlannedStep, index, total int)
	now      func() time.Time

	state      State
	failedStep string
}

// New creates a procedure that applies plan through admin. secret is the
// application user's password.
func New(admin storage.Admin, plan schema.Plan, secret string, opts ...Option) *Procedure {
	p := &Procedure{
		admin:  admin,
		plan:   plan,
		secret: secret,
		out:    os.Stdout,
		logger: zap.NewNop().Sugar(),
		tracer: noop.NewTracerProvider().Tracer("elisedb/provision"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state
func (p *Procedure) State() State {
	return p.state
}

// FailedStep returns the name of the step that aborted the run, if any
func (p *Procedure) FailedStep() string {
	return p.failedStep
}

// Steps lists the operations of a run in execution order
func (p *Procedure) Steps() []PlannedStep {
	steps := p.steps()
	planned := make([]PlannedStep, len(steps))
	for i, s := range steps {
		planned[i] = s.PlannedStep
	}
	return planned
}

// Steps lists the operations a run of plan performs, in execution order
func Steps(plan schema.Plan) []PlannedStep {
	return New(nil, plan, "").Steps()
}

func (p *Procedure) steps() []step {
	steps := []step{{
		PlannedStep: PlannedStep{Name: StepSelectDatabase, Target: p.plan.Database},
		exec: func(ctx context.Context) error {
			p.admin.SelectDatabase(p.plan.Database)
			return nil
		},
	}}

	steps = append(steps, step{
		PlannedStep: PlannedStep{Name: StepCreateUser, Target: p.plan.User.Username},
		exec: func(ctx context.Context) error {
			roles := make([]storage.RoleGrant, len(p.plan.User.Roles))
			for i, r := range p.plan.User.Roles {
				roles[i] = storage.RoleGrant{Role: r.Role, DB: r.DB}
			}
			return p.admin.CreateUser(ctx, storage.UserSpec{
				Username: p.plan.User.Username,
				Password: p.secret,
				Roles:    roles,
			})
		},
	})

	for _, c := range p.plan.Collections {
		name := c.Name
		steps = append(steps, step{
			PlannedStep: PlannedStep{Name: StepCreateCollection, Target: name},
			exec: func(ctx context.Context) error {
				return p.admin.CreateCollection(ctx, name)
			},
		})
	}

	for _, idx := range p.plan.Indexes {
		spec := storage.IndexSpec{
			Collection: idx.Collection,
			Field:      idx.Field,
			Unique:     idx.Unique,
			Name:       idx.Name,
		}
		steps = append(steps, step{
			PlannedStep: PlannedStep{Name: StepCreateIndex, Target: idx.Collection + "." + idx.Field},
			exec: func(ctx context.Context) error {
				_, err := p.admin.CreateIndex(ctx, spec)
				return err
			},
		})
	}

	steps = append(steps, step{
		PlannedStep: PlannedStep{Name: StepComplete, Target: p.plan.Database},
		exec: func(ctx context.Context) error {
			if _, err := fmt.Fprintln(p.out, CompletionMessage); err != nil {
				return fmt.Errorf("failed to write completion message: %w", err)
			}
			p.logger.Info(CompletionMessage)
			return nil
		},
	})

	return steps
}

// Run executes the steps in order. The first failure aborts the run and is
// returned as a *StepError; nothing is retried or rolled back. A Report is
// returned only when every step succeeded.
func (p *Procedure) Run(ctx context.Context) (*Report, error) {
	if p.state != StateNotRun {
		return nil, ErrAlreadyRun
	}
	p.state = StateRunning

	report := &Report{
		RunID:     uuid.NewString(),
		Database:  p.plan.Database,
		User:      p.plan.User.Username,
		StartedAt: p.now(),
	}
	logger := p.logger.With("run_id", report.RunID, "database", p.plan.Database)
	logger.Infow("Bootstrap started")

	steps := p.steps()
	for i, s := range steps {
		if p.progress != nil {
			p.progress(s.PlannedStep, i, len(steps))
		}

		took, err := p.runStep(ctx, s)
		if err != nil {
			p.state = StateFailed
			p.failedStep = s.Name
			metrics.ObserveRun(p.now(), err)
			logger.Errorw("Bootstrap aborted",
				"step", s.Name,
				"target", s.Target,
				"error", err)
			return nil, &StepError{Step: s.Name, Target: s.Target, Err: err}
		}

		report.Steps = append(report.Steps, StepResult{Name: s.Name, Target: s.Target, Took: took})
		logger.Debugw("Step acknowledged", "step", s.Name, "target", s.Target, "took", took.String())
	}

	report.Took = p.now().Sub(report.StartedAt)
	p.state = StateCompleted
	metrics.ObserveRun(p.now(), nil)
	logger.Infow("Bootstrap finished", "steps", len(report.Steps), "took", report.Took.String())

	return report, nil
}

func (p *Procedure) runStep(ctx context.Context, s step) (time.Duration, error) {
	ctx, span := p.tracer.Start(ctx, SpanPrefix+s.Name, trace.WithAttributes(
		attribute.String("elisedb.step", s.Name),
		attribute.String("elisedb.target", s.Target),
		attribute.String("elisedb.database", p.plan.Database),
	))
	defer span.End()

	start := p.now()
	err := ctx.Err()
	if err == nil {
		err = s.exec(ctx)
	}
	took := p.now().Sub(start)

	if s.Name != StepComplete {
		metrics.ObserveStep(s.Name, took, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return took, err
	}
	span.SetStatus(codes.Ok, "")
	return took, nil
}
