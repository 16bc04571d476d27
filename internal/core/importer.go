package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ProgressFunc is called after every row with the rows handled so far.
type ProgressFunc func(processed, total int)

// Options adjust a single import run.
type Options struct {
	// ClassID attaches every imported subject to this class.
	ClassID string
	// WaitForEffects blocks until the run's secondary effects finish and
	// reports their failures in ImportResult.EffectErrors.
	WaitForEffects bool
	// DryRun validates and looks up references without writing anything.
	DryRun bool
	// RunID names the run; a random one is used when empty.
	RunID string
}

// RunState is the lifecycle of an import run.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// Terminal reports whether a run in this state has ended.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// NamedEffect is a secondary effect produced for a persisted entity.
type NamedEffect struct {
	Name string
	Job  EffectJob
}

// EffectFactory decides which secondary effects follow an entity's creation.
type EffectFactory interface {
	EffectsFor(e Entity) []NamedEffect
}

// EffectError reports a secondary effect that failed after its row was saved.
type EffectError struct {
	Row      int    `json:"row"`
	EntityID string `json:"entityId"`
	Effect   string `json:"effect"`
	Message  string `json:"message"`
}

// DuplicateError rejects a row whose unique value is already taken.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Field, e.Value)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateIdentifier
}

// ImportResult is the outcome of one run. Entities, Errors and RowErrors are
// in source row order.
type ImportResult struct {
	RunID        string        `json:"runId"`
	Kind         EntityKind    `json:"kind"`
	State        RunState      `json:"state"`
	DryRun       bool          `json:"dryRun,omitempty"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Entities     []Entity      `json:"entities"`
	Errors       []string      `json:"errors"`
	RowErrors    []RowError    `json:"rowErrors,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	EffectErrors []EffectError `json:"effectErrors,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

// Failed returns the number of rejected rows.
func (r *ImportResult) Failed() int {
	return len(r.RowErrors)
}

// Importer runs the tokenize, validate, resolve, persist and enqueue pipeline.
type Importer struct {
	store   Store
	queue   *EffectQueue
	effects EffectFactory
	ids     *IdentifierGenerator
	now     func() time.Time
	log     *slog.Logger
}

// ImporterOption configures NewImporter.
type ImporterOption func(*Importer)

// WithIdentifierGenerator replaces the default generator.
func WithIdentifierGenerator(g *IdentifierGenerator) ImporterOption {
	return func(im *Importer) {
		im.ids = g
	}
}

// WithClock sets the clock for defaults and timings.
func WithClock(now func() time.Time) ImporterOption {
	return func(im *Importer) {
		im.now = now
	}
}

// WithLogger sets the base logger; each run adds run_id and kind.
func WithLogger(log *slog.Logger) ImporterOption {
	return func(im *Importer) {
		im.log = log
	}
}

// NewImporter wires an importer. queue and effects may be nil, in which case
// no secondary effects are produced.
func NewImporter(store Store, queue *EffectQueue, effects EffectFactory, opts ...ImporterOption) *Importer {
	im := &Importer{
		store:   store,
		queue:   queue,
		effects: effects,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.ids == nil {
		im.ids = NewIdentifierGenerator(WithIdentifierClock(im.now), WithIdentifierLogger(im.log))
	}
	return im
}

func (im *Importer) ImportStudents(ctx context.Context, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	return im.Import(ctx, KindStudent, src, opts, onProgress)
}

func (im *Importer) ImportTeachers(ctx context.Context, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	return im.Import(ctx, KindTeacher, src, opts, onProgress)
}

func (im *Importer) ImportClasses(ctx context.Context, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	return im.Import(ctx, KindClass, src, opts, onProgress)
}

func (im *Importer) ImportSubjects(ctx context.Context, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	return im.Import(ctx, KindSubject, src, opts, onProgress)
}

func (im *Importer) ImportParents(ctx context.Context, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	return im.Import(ctx, KindParent, src, opts, onProgress)
}

// Import reads src as delimited text and imports every valid row as kind.
//
// Rows are processed one at a time in source order. A rejected row never
// stops the run; its reasons are collected in the result. The returned error
// is non-nil only when the source cannot be tokenized (no result) or ctx ends
// mid-run (partial result in state Failed).
func (im *Importer) Import(ctx context.Context, kind EntityKind, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	def, err := Definition(kind)
	if err != nil {
		return nil, err
	}

	var vopts []ValidatorOption
	vopts = append(vopts, WithValidatorClock(im.now))
	if opts.ClassID != "" {
		vopts = append(vopts, WithClassOverride(opts.ClassID))
	}
	validator, err := NewValidator(kind, vopts...)
	if err != nil {
		return nil, err
	}

	run := im.newRun(def, opts)

	items, err := ReadAll(NewTokenizer(src))
	if err != nil && !errors.Is(err, ErrEmptyInput) {
		run.log.Error("import aborted: source unreadable", "error", err)
		recordImport(kind, StateFailed, im.now().Sub(run.result.StartedAt))
		return nil, fmt.Errorf("import %s: %w", def.Plural, err)
	}

	run.result.State = StateRunning
	run.result.Total = len(items)
	run.log.Info("import started", "rows", len(items), "dry_run", opts.DryRun)

	for i, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			run.finish(StateFailed)
			im.recordRun(ctx, run)
			run.log.Warn("import cancelled", "processed", i, "total", len(items))
			return run.result, fmt.Errorf("%w after %d of %d rows: %w", ErrImportCancelled, i, len(items), ctxErr)
		}

		run.process(ctx, validator, item)

		if onProgress != nil {
			onProgress(i+1, len(items))
		}
	}

	switch {
	case errors.Is(err, ErrEmptyInput):
		run.result.Errors = append(run.result.Errors, err.Error())
	case len(items) == 0:
		run.result.Errors = append(run.result.Errors, "no data rows found")
	case run.result.Succeeded == 0:
		run.result.Errors = append(run.result.Errors, "no valid rows found")
	}

	if opts.WaitForEffects {
		run.awaitEffects(ctx)
	}

	run.finish(StateCompleted)
	im.recordRun(ctx, run)
	run.log.Info("import completed",
		"succeeded", run.result.Succeeded,
		"failed", run.result.Failed(),
		"warnings", len(run.result.Warnings),
		"duration", run.result.Duration,
	)
	return run.result, nil
}

const insertImportRun = `INSERT INTO import_runs (id, kind, state, total_rows, succeeded, failed, dry_run, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// recordRun writes a summary row. Failure only logs.
func (im *Importer) recordRun(ctx context.Context, run *importRun) {
	r := run.result
	_, err := im.store.Execute(context.WithoutCancel(ctx), insertImportRun,
		r.RunID, string(r.Kind), string(r.State), r.Total, r.Succeeded, r.Failed(), r.DryRun,
		r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		run.log.Warn("failed to record import run", "error", err)
	}
}

func (im *Importer) newRun(def KindDefinition, opts Options) *importRun {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &importRun{
		im:       im,
		def:      def,
		opts:     opts,
		log:      im.log.With("run_id", runID, "kind", def.Kind),
		resolver: NewResolver(im.store, im.log.With("run_id", runID)),
		seen:     make(map[string]struct{}),
		result: &ImportResult{
			RunID:     runID,
			Kind:      def.Kind,
			State:     StateIdle,
			DryRun:    opts.DryRun,
			Entities:  []Entity{},
			Errors:    []string{},
			StartedAt: im.now(),
		},
	}
}

// importRun is the mutable state of one Import call.
type importRun struct {
	im       *Importer
	def      KindDefinition
	opts     Options
	log      *slog.Logger
	resolver *Resolver
	result   *ImportResult

	// seen holds unique values claimed by earlier rows of this run;
	// claimed holds those claimed by the current row until it is saved.
	seen    map[string]struct{}
	claimed []string
	futures []runEffect
}

type runEffect struct {
	row      int
	entityID string
	future   *EffectFuture
}

func (run *importRun) process(ctx context.Context, v Validator, item TokenizedRow) {
	if item.Err != nil {
		run.reject(item.Err)
		return
	}

	rec, rowErr := v.ValidateRow(item.Row)
	if rowErr != nil {
		run.reject(rowErr)
		return
	}

	run.claimed = run.claimed[:0]
	entity, err := run.save(ctx, rec)
	if err != nil {
		for _, key := range run.claimed {
			delete(run.seen, key)
		}
		run.reject(run.persistError(rec.Row(), err))
		return
	}

	run.result.Entities = append(run.result.Entities, entity)
	run.result.Succeeded++
	recordRow(run.def.Kind, "imported")
	if !run.opts.DryRun {
		run.enqueueEffects(rec.Row(), entity)
	}
}

func (run *importRun) reject(rowErr *RowError) {
	run.result.RowErrors = append(run.result.RowErrors, *rowErr)
	run.result.Errors = append(run.result.Errors, rowErr.Error())
	recordRow(run.def.Kind, "rejected")
	run.log.Debug("row rejected", "row", rowErr.Row, "reasons", rowErr.Reasons)
}

func (run *importRun) warn(row int, format string, args ...any) {
	msg := fmt.Sprintf("Row %d: ", row) + fmt.Sprintf(format, args...)
	run.result.Warnings = append(run.result.Warnings, msg)
	run.log.Warn(msg)
}

func (run *importRun) persistError(row int, err error) *RowError {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return newRowError(row, "%s", dup.Error())
	}

	switch ClassifyError(err) {
	case ErrorClassDuplicate:
		return newRowError(row, "duplicate record: %s", MapError(err).Message)
	case ErrorClassConstraint:
		return newRowError(row, "constraint violation: %s", MapError(err).Message)
	default:
		run.log.Warn("row failed to save", "row", row, "error", err)
		return newRowError(row, "failed to save: %s", MapError(err).Message)
	}
}

func (run *importRun) finish(state RunState) {
	run.result.State = state
	run.result.Duration = run.im.now().Sub(run.result.StartedAt)
	recordImport(run.def.Kind, state, run.result.Duration)
}

func (run *importRun) save(ctx context.Context, rec Record) (Entity, error) {
	switch r := rec.(type) {
	case StudentRecord:
		return run.saveStudent(ctx, r)
	case TeacherRecord:
		return run.saveTeacher(ctx, r)
	case ClassRecord:
		return run.saveClass(ctx, r)
	case SubjectRecord:
		return run.saveSubject(ctx, r)
	case ParentRecord:
		return run.saveParent(ctx, r)
	default:
		return Entity{}, fmt.Errorf("%w: %T", ErrUnknownKind, rec)
	}
}

func (run *importRun) saveStudent(ctx context.Context, r StudentRecord) (Entity, error) {
	code, err := run.claimCode(ctx, r.AdmissionNumber)
	if err != nil {
		return Entity{}, err
	}

	refs := references{code: code}
	refs.classID = run.lookupClass(ctx, r.RowNumber, r.ClassName)

	if !r.Parent.IsZero() && !run.opts.DryRun {
		res, err := run.resolver.ResolveParent(ctx, r.Parent)
		switch {
		case err != nil:
			run.warn(r.RowNumber, "parent %q could not be created (%v); student saved without parent link", r.Parent.Name, err)
		case res.ID == "":
			run.warn(r.RowNumber, "parent needs both a name and a phone; student saved without parent link")
		default:
			refs.parentID = res.ID
			if res.Created {
				run.enqueueEffects(r.RowNumber, res.Entity)
			}
		}
	}

	return run.persist(ctx, r.RowNumber, studentEntity(r, refs))
}

func (run *importRun) saveTeacher(ctx context.Context, r TeacherRecord) (Entity, error) {
	if err := run.claimField(ctx, "email", r.Email); err != nil {
		return Entity{}, err
	}
	code, err := run.claimCode(ctx, r.EmployeeID)
	if err != nil {
		return Entity{}, err
	}
	return run.persist(ctx, r.RowNumber, teacherEntity(r, references{code: code}))
}

func (run *importRun) saveClass(ctx context.Context, r ClassRecord) (Entity, error) {
	if _, err := run.claimCode(ctx, r.Name); err != nil {
		return Entity{}, err
	}
	refs := references{teacherID: run.lookupTeacher(ctx, r.RowNumber, r.ClassTeacherEmail)}
	return run.persist(ctx, r.RowNumber, classEntity(r, refs))
}

func (run *importRun) saveSubject(ctx context.Context, r SubjectRecord) (Entity, error) {
	if _, err := run.claimCode(ctx, r.Code); err != nil {
		return Entity{}, err
	}
	refs := references{classID: r.ClassID}
	if refs.classID == "" {
		refs.classID = run.lookupClass(ctx, r.RowNumber, r.ClassName)
	}
	refs.teacherID = run.lookupTeacher(ctx, r.RowNumber, r.TeacherEmail)
	return run.persist(ctx, r.RowNumber, subjectEntity(r, refs))
}

func (run *importRun) saveParent(ctx context.Context, r ParentRecord) (Entity, error) {
	if _, err := run.claimCode(ctx, r.Phone); err != nil {
		return Entity{}, err
	}
	return run.persist(ctx, r.RowNumber, parentEntity(r))
}

// claimCode verifies or generates the kind's unique identifier, checking both
// the store and rows earlier in this run.
func (run *importRun) claimCode(ctx context.Context, candidate string) (string, error) {
	kind := run.def.Kind
	code, err := run.im.ids.EnsureUnique(ctx, kind, candidate, func(ctx context.Context, code string) (bool, error) {
		if _, ok := run.seen[code]; ok {
			return true, nil
		}
		return run.im.store.ExistsByCode(ctx, kind, code)
	})
	if errors.Is(err, ErrDuplicateIdentifier) {
		return "", &DuplicateError{Field: run.def.CodeLabel, Value: candidate}
	}
	if err != nil {
		return "", err
	}
	run.claim(code)
	return code, nil
}

// claimField rejects value if another entity of the kind already has it.
func (run *importRun) claimField(ctx context.Context, field, value string) error {
	key := field + ":" + value
	if _, ok := run.seen[key]; ok {
		return &DuplicateError{Field: field, Value: value}
	}
	taken, err := run.im.store.ExistsByField(ctx, run.def.Kind, field, value)
	if err != nil {
		return fmt.Errorf("check %s %q: %w", field, value, err)
	}
	if taken {
		return &DuplicateError{Field: field, Value: value}
	}
	run.claim(key)
	return nil
}

func (run *importRun) claim(key string) {
	run.seen[key] = struct{}{}
	run.claimed = append(run.claimed, key)
}

func (run *importRun) lookupClass(ctx context.Context, row int, name string) string {
	if name == "" {
		return ""
	}
	id, err := run.resolver.ResolveClass(ctx, name)
	if err != nil {
		run.warn(row, "class %q lookup failed (%v); saved without class link", name, err)
		return ""
	}
	if id == "" {
		run.warn(row, "class %q not found; saved without class link", name)
	}
	return id
}

func (run *importRun) lookupTeacher(ctx context.Context, row int, email string) string {
	if email == "" {
		return ""
	}
	id, err := run.resolver.ResolveTeacher(ctx, email)
	if err != nil {
		run.warn(row, "teacher %q lookup failed (%v); saved without teacher link", email, err)
		return ""
	}
	if id == "" {
		run.warn(row, "teacher %q not found; saved without teacher link", email)
	}
	return id
}

func (run *importRun) persist(ctx context.Context, row int, e Entity) (Entity, error) {
	if run.opts.DryRun {
		return e, nil
	}
	created, err := run.im.store.Create(ctx, run.def.Kind, e)
	if err != nil {
		return Entity{}, err
	}
	if created.Kind == "" {
		created.Kind = run.def.Kind
	}
	run.log.Debug("row imported", "row", row, "id", created.ID, "code", created.Code)
	return created, nil
}

func (run *importRun) enqueueEffects(row int, e Entity) {
	if run.im.queue == nil || run.im.effects == nil {
		return
	}
	for _, eff := range run.im.effects.EffectsFor(e) {
		f := run.im.queue.Enqueue(eff.Name, eff.Job)
		run.futures = append(run.futures, runEffect{row: row, entityID: e.ID, future: f})
	}
}

// awaitEffects collects the outcome of every effect enqueued by this run.
func (run *importRun) awaitEffects(ctx context.Context) {
	for _, fe := range run.futures {
		err := fe.future.Wait(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			run.result.Warnings = append(run.result.Warnings, "stopped waiting for secondary effects: "+ctx.Err().Error())
			return
		}
		run.result.EffectErrors = append(run.result.EffectErrors, EffectError{
			Row:      fe.row,
			EntityID: fe.entityID,
			Effect:   fe.future.Name(),
			Message:  err.Error(),
		})
	}
}
