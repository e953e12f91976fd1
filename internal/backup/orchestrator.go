// Package backup exports HACCP records to Google Sheets, on demand and on a
// daily schedule.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/dukerupert/haccp/internal/credential"
	"github.com/dukerupert/haccp/internal/document"
	"github.com/dukerupert/haccp/internal/metrics"
	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/sheets"
	"github.com/dukerupert/haccp/internal/store"
	"github.com/dukerupert/haccp/internal/syncerr"
	"github.com/dukerupert/haccp/internal/token"
)

// Authenticator exchanges a service account credential for an access token.
type Authenticator interface {
	RequestAccessToken(ctx context.Context, cred *credential.Credential) (token.AccessToken, error)
}

// SheetWriter is the part of *sheets.Client a run uses.
type SheetWriter interface {
	EnsureSheet(ctx context.Context, title string) (int64, bool, error)
	ClearRange(ctx context.Context, title, rng string)
	WriteValues(ctx context.Context, title string, matrix [][]string) (sheets.WriteResult, error)
	ApplyFormatting(ctx context.Context, sheetID int64, reqs []*gsheets.Request)
}

// ClientFactory opens a SheetWriter for one spreadsheet.
type ClientFactory func(ctx context.Context, spreadsheetID string, tok token.AccessToken) (SheetWriter, error)

// SheetsFactory returns a ClientFactory backed by the Sheets API.
func SheetsFactory(opts sheets.Options) ClientFactory {
	return func(ctx context.Context, spreadsheetID string, tok token.AccessToken) (SheetWriter, error) {
		c, err := sheets.New(ctx, spreadsheetID, tok, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Notifier is told about scheduled runs that did not fully succeed.
type Notifier interface {
	BackupFailed(ctx context.Context, entry *model.BackupLogEntry) error
}

// Stores are the persisted collaborators of a run.
type Stores struct {
	Config     *store.ConfigStore
	Structures *store.StructureStore
	Records    *store.RecordStore
	Logs       *store.BackupLogStore
	Leases     *store.LeaseStore
}

// runLease is the lease every process opening the same database takes for
// the length of a run.
const runLease = "backup_run"

type Options struct {
	// DocumentTimeout bounds the export of one document type.
	DocumentTimeout time.Duration
	// Concurrency is how many document types are exported at once.
	Concurrency int
	// LeaseTTL is how long a run's lease outlives a process that died
	// without releasing it. The lease is renewed every LeaseTTL/3.
	LeaseTTL time.Duration
}

// State represents the orchestrator state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Status is the live state reported to admin panels.
type Status struct {
	State      State              `json:"state"`
	InProgress bool               `json:"in_progress"`
	LogID      string             `json:"log_id,omitempty"`
	LastRun    *time.Time         `json:"last_run,omitempty"`
	LastStatus model.BackupStatus `json:"last_status,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Outcome is what every trigger returns: success, plus the run data, plus
// the error when the run did not fully succeed.
type Outcome struct {
	Success bool       `json:"success"`
	Data    *RunResult `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type RunResult struct {
	LogID       string                 `json:"logId"`
	Status      model.BackupStatus     `json:"status"`
	RecordCount int                    `json:"recordCount"`
	Results     []model.DocumentResult `json:"results"`
}

type ErrorInfo struct {
	Kind    syncerr.Kind `json:"kind"`
	Message string       `json:"message"`
	Hint    string       `json:"hint,omitempty"`
}

func errorInfo(err error) *ErrorInfo {
	kind := syncerr.KindOf(err)
	return &ErrorInfo{Kind: kind, Message: err.Error(), Hint: syncerr.Hint(kind)}
}

// Orchestrator runs backups. At most one run is in flight at a time, across
// every orchestrator sharing the database.
type Orchestrator struct {
	owner     string
	stores    Stores
	auth      Authenticator
	newClient ClientFactory
	opts      Options
	logger    *slog.Logger

	snapshots *Snapshotter
	notifier  Notifier
	callback  StatusCallback

	running sync.Mutex

	mu     sync.RWMutex
	status Status
}

func NewOrchestrator(stores Stores, auth Authenticator, newClient ClientFactory, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.DocumentTimeout == 0 {
		opts.DocumentTimeout = 30 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.LeaseTTL == 0 {
		opts.LeaseTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		owner:     uuid.NewString(),
		stores:    stores,
		auth:      auth,
		newClient: newClient,
		opts:      opts,
		logger:    logger,
		status:    Status{State: StateIdle},
	}
}

// SetSnapshotter enables S3 snapshots of written matrices. nil disables them.
func (o *Orchestrator) SetSnapshotter(s *Snapshotter) { o.snapshots = s }

// SetNotifier sets who hears about failed scheduled runs.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// SetStatusCallback must be called before the first run.
func (o *Orchestrator) SetStatusCallback(cb StatusCallback) { o.callback = cb }

// Status returns the current backup status.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
	if o.callback != nil {
		o.callback(s)
	}
}

// RunScheduled backs up every enabled structure, or CCP records alone when
// no structure has been configured.
func (o *Orchestrator) RunScheduled(ctx context.Context) Outcome {
	return o.run(ctx, model.TriggerScheduled, "", o.configuredTargets)
}

// RunManual is RunScheduled started by an operator.
func (o *Orchestrator) RunManual(ctx context.Context) Outcome {
	return o.run(ctx, model.TriggerManual, "", o.configuredTargets)
}

// RunDocument backs up one document type. Empty spreadsheetID and sheetName
// fall back to the saved structure, then to the configured defaults.
func (o *Orchestrator) RunDocument(ctx context.Context, docType, spreadsheetID, sheetName string) Outcome {
	if _, ok := document.Lookup(docType); !ok {
		return Outcome{Error: errorInfo(syncerr.New(syncerr.KindUnknownDocument,
			fmt.Sprintf("unknown document type %q", docType), nil))}
	}

	return o.run(ctx, model.TriggerDocument, docType, func() ([]model.BackupStructure, error) {
		st := model.BackupStructure{DocumentType: docType}
		saved, err := o.stores.Structures.Get(docType)
		if err != nil {
			return nil, err
		}
		if saved != nil {
			st = *saved
		}
		st.Enabled = true
		if spreadsheetID != "" {
			st.SpreadsheetID = spreadsheetID
		}
		if sheetName != "" {
			st.SheetName = sheetName
		}
		return []model.BackupStructure{st}, nil
	})
}

func (o *Orchestrator) configuredTargets() ([]model.BackupStructure, error) {
	all, err := o.stores.Structures.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return []model.BackupStructure{{DocumentType: document.TypeCCP, SpreadsheetID: model.DefaultSpreadsheet, Enabled: true}}, nil
	}
	var enabled []model.BackupStructure
	for _, st := range all {
		if st.Enabled {
			enabled = append(enabled, st)
		}
	}
	return enabled, nil
}

// job is one document type within a run.
type job struct {
	structure     model.BackupStructure
	spreadsheetID string
	plans         []document.SheetPlan
	done          bool
	result        model.DocumentResult
	written       []SnapshotSheet
}

func (j *job) fail(err error) {
	j.result.Status = model.BackupStatusFailed
	j.result.Error = err.Error()
	j.result.ErrorKind = string(syncerr.KindOf(err))
	j.done = true
}

func (o *Orchestrator) run(ctx context.Context, trigger model.Trigger, docType string, targets func() ([]model.BackupStructure, error)) Outcome {
	if !o.running.TryLock() {
		return Outcome{Error: errorInfo(syncerr.New(syncerr.KindInProgress, "a backup is already running", nil))}
	}
	defer o.running.Unlock()

	start := time.Now()
	logger := o.logger.With("trigger", trigger)

	if err := o.stores.Leases.Acquire(runLease, o.owner, o.opts.LeaseTTL); err != nil {
		if errors.Is(err, store.ErrLeaseHeld) {
			return Outcome{Error: errorInfo(syncerr.New(syncerr.KindInProgress, "a backup is already running in another process", nil))}
		}
		logger.Error("acquire backup lease", "error", err)
		return Outcome{Error: errorInfo(syncerr.New(syncerr.KindStorage, "acquire backup lease", err))}
	}
	stopRenew := o.renewLease(logger)
	defer func() {
		stopRenew()
		if err := o.stores.Leases.Release(runLease, o.owner); err != nil {
			logger.Warn("release backup lease", "error", err)
		}
	}()

	entry, err := o.stores.Logs.Create(trigger, docType)
	if err != nil {
		logger.Error("create backup log", "error", err)
		return Outcome{Error: errorInfo(syncerr.New(syncerr.KindStorage, "create backup log", err))}
	}
	logger = logger.With("log_id", entry.ID)
	logger.Info("backup started", "document_type", docType)
	o.setStatus(Status{State: StateRunning, InProgress: true, LogID: entry.ID})

	jobs, fatal := o.execute(ctx, logger, targets)
	if fatal != nil {
		logger.Error("backup aborted", "error", fatal, "kind", syncerr.KindOf(fatal))
		for _, j := range jobs {
			if !j.done {
				j.fail(fatal)
			}
		}
	}

	results := make([]model.DocumentResult, len(jobs))
	var written []SnapshotSheet
	for i, j := range jobs {
		results[i] = j.result
		written = append(written, j.written...)
	}

	c := store.Completion{Status: model.BackupStatusFailed, Results: results}
	if fatal != nil {
		c.Error = fatal.Error()
		c.ErrorKind = string(syncerr.KindOf(fatal))
	} else {
		c.Status, c.Error, c.ErrorKind = aggregate(results)
	}
	for _, r := range results {
		if r.Status == model.BackupStatusSuccess {
			c.RecordCount += r.RecordCount
		}
	}

	done, err := o.stores.Logs.Complete(entry.ID, c)
	if err != nil {
		logger.Error("complete backup log", "error", err)
		done = entry
		done.Status, done.RecordCount, done.Results = c.Status, c.RecordCount, c.Results
		done.Error, done.ErrorKind = c.Error, c.ErrorKind
	}

	o.record(trigger, c, time.Since(start))
	o.snapshot(ctx, logger, entry.ID, trigger, written)
	if trigger == model.TriggerScheduled && c.Status != model.BackupStatusSuccess && o.notifier != nil {
		if err := o.notifier.BackupFailed(ctx, done); err != nil {
			logger.Warn("send backup alert", "error", err)
		}
	}

	now := time.Now().UTC()
	o.setStatus(Status{State: StateIdle, LogID: entry.ID, LastRun: &now, LastStatus: c.Status, Error: c.Error})
	logger.Info("backup finished", "status", c.Status, "records", c.RecordCount, "duration", time.Since(start))

	out := Outcome{
		Success: c.Status == model.BackupStatusSuccess,
		Data:    &RunResult{LogID: entry.ID, Status: c.Status, RecordCount: c.RecordCount, Results: results},
	}
	if !out.Success {
		kind := syncerr.Kind(c.ErrorKind)
		out.Error = &ErrorInfo{Kind: kind, Message: c.Error, Hint: syncerr.Hint(kind)}
	}
	return out
}

// renewLease keeps the run lease alive until the returned func is called.
func (o *Orchestrator) renewLease(logger *slog.Logger) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(o.opts.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := o.stores.Leases.Acquire(runLease, o.owner, o.opts.LeaseTTL); err != nil {
					logger.Warn("renew backup lease", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// execute loads configuration and records, authenticates once and exports
// every job. A non-nil error means the run failed before any export.
func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, targets func() ([]model.BackupStructure, error)) ([]*job, error) {
	cfg, err := o.stores.Config.GetBackupConfig()
	if err != nil {
		return nil, syncerr.New(syncerr.KindStorage, "load backup config", err)
	}
	if cfg == nil || strings.TrimSpace(cfg.ServiceAccountJSON) == "" {
		return nil, syncerr.New(syncerr.KindConfigMissing, "service account JSON is not configured", nil)
	}
	cred, err := credential.Parse(cfg.ServiceAccountJSON)
	if err != nil {
		return nil, err
	}

	structures, err := targets()
	if err != nil {
		return nil, syncerr.New(syncerr.KindStorage, "load backup structures", err)
	}

	jobs := make([]*job, 0, len(structures))
	claims := make(sheetClaims)
	total := 0
	for _, st := range structures {
		j := &job{structure: st, result: model.DocumentResult{DocumentType: st.DocumentType}}
		jobs = append(jobs, j)

		j.spreadsheetID = st.Spreadsheet(cfg.SpreadsheetID)
		if j.spreadsheetID == "" {
			return jobs, syncerr.New(syncerr.KindConfigMissing, "spreadsheet ID is not configured", nil)
		}
		j.result.SpreadsheetID = j.spreadsheetID

		schema, ok := document.Lookup(st.DocumentType)
		if !ok {
			j.fail(syncerr.New(syncerr.KindUnknownDocument, fmt.Sprintf("unknown document type %q", st.DocumentType), nil))
			continue
		}
		records, skipped, err := o.stores.Records.List(schema.Prefix)
		if err != nil {
			j.fail(syncerr.New(syncerr.KindStorage, "load records", err))
			continue
		}
		if len(skipped) > 0 {
			logger.Warn("skipped unreadable records", "document_type", st.DocumentType, "keys", skipped)
		}

		j.result.RecordCount = len(records)
		if len(records) == 0 {
			j.result.Status = model.BackupStatusSuccess
			j.done = true
			continue
		}
		if j.plans, err = document.Plan(st.DocumentType, st.SheetName, st.Fields, records); err != nil {
			j.fail(err)
			continue
		}
		if err := claims.claim(j); err != nil {
			j.fail(err)
			logger.Warn("document backup skipped", "document_type", st.DocumentType, "error", err)
			continue
		}
		total += len(records)
	}

	if total == 0 {
		logger.Info("nothing to back up")
		return jobs, nil
	}

	tok, err := o.auth.RequestAccessToken(ctx, cred)
	if err != nil {
		return jobs, err
	}

	pool := &clientPool{factory: o.newClient, tok: tok, clients: make(map[string]SheetWriter)}
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for _, j := range jobs {
		if j.done {
			continue
		}
		g.Go(func() error {
			o.export(ctx, logger, pool, j)
			return nil
		})
	}
	_ = g.Wait()
	return jobs, nil
}

// sheetClaims maps a spreadsheet and case folded sheet title to the
// document type writing it within a run.
type sheetClaims map[string]string

// claim reserves every sheet of j. A sheet already held by an earlier job
// fails j without reserving any of its sheets.
func (c sheetClaims) claim(j *job) error {
	keys := make([]string, len(j.plans))
	for i, p := range j.plans {
		keys[i] = j.spreadsheetID + "\x00" + strings.ToLower(p.Title)
		if owner, ok := c[keys[i]]; ok {
			return syncerr.New(syncerr.KindSheetConflict,
				fmt.Sprintf("sheet %q on spreadsheet %s is already written by %s", p.Title, j.spreadsheetID, owner), nil)
		}
	}
	for _, k := range keys {
		c[k] = j.structure.DocumentType
	}
	return nil
}

// export writes every sheet of one job. The first sheet failure ends the job.
func (o *Orchestrator) export(ctx context.Context, logger *slog.Logger, pool *clientPool, j *job) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.DocumentTimeout)
	defer cancel()
	logger = logger.With("document_type", j.structure.DocumentType, "spreadsheet_id", j.spreadsheetID)

	client, err := pool.get(ctx, j.spreadsheetID)
	if err != nil {
		j.fail(err)
		logger.Warn("document backup failed", "error", err)
		return
	}

	for _, p := range j.plans {
		id, created, err := client.EnsureSheet(ctx, p.Title)
		if err != nil {
			j.fail(err)
			logger.Warn("document backup failed", "sheet", p.Title, "error", err)
			return
		}

		client.ClearRange(ctx, p.Title, "")
		res, err := client.WriteValues(ctx, p.Title, p.Matrix)
		for _, a := range res.Attempts {
			j.result.Attempts = append(j.result.Attempts, model.WriteAttempt{Rung: string(a.Rung), Range: a.Range, Error: a.Error})
		}
		if err != nil {
			j.fail(err)
			logger.Warn("document backup failed", "sheet", p.Title, "error", err)
			return
		}

		client.ApplyFormatting(ctx, id, sheets.FormatRequests(id, p.Layout, created))
		j.result.Sheets = append(j.result.Sheets, model.SheetResult{Title: p.Title, Rows: len(p.Matrix), Rung: string(res.Rung)})
		j.written = append(j.written, SnapshotSheet{
			DocumentType:  j.structure.DocumentType,
			SpreadsheetID: j.spreadsheetID,
			Title:         p.Title,
			Matrix:        p.Matrix,
		})
	}

	j.result.Status = model.BackupStatusSuccess
	j.done = true
}

// clientPool shares one SheetWriter per spreadsheet across a run, so sheet
// creation on a spreadsheet is serialized by that writer.
type clientPool struct {
	factory ClientFactory
	tok     token.AccessToken

	mu      sync.Mutex
	clients map[string]SheetWriter
}

func (p *clientPool) get(ctx context.Context, spreadsheetID string) (SheetWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[spreadsheetID]; ok {
		return c, nil
	}
	c, err := p.factory(ctx, spreadsheetID, p.tok)
	if err != nil {
		return nil, syncerr.New(syncerr.KindSpreadsheetUnreachable, "open spreadsheet client", err)
	}
	p.clients[spreadsheetID] = c
	return c, nil
}

// aggregate derives the run status: success if every document succeeded,
// failed if none did, partial otherwise.
func aggregate(results []model.DocumentResult) (model.BackupStatus, string, string) {
	var ok int
	var failed []model.DocumentResult
	for _, r := range results {
		if r.Status == model.BackupStatusSuccess {
			ok++
		} else {
			failed = append(failed, r)
		}
	}

	switch {
	case len(failed) == 0:
		return model.BackupStatusSuccess, "", ""
	case ok == 0:
		return model.BackupStatusFailed,
			fmt.Sprintf("all %d document types failed: %s", len(failed), failed[0].Error),
			failed[0].ErrorKind
	}
	names := make([]string, len(failed))
	for i, r := range failed {
		names[i] = r.DocumentType
	}
	return model.BackupStatusPartial,
		fmt.Sprintf("%d of %d document types failed: %s", len(failed), len(results), strings.Join(names, ", ")),
		string(syncerr.KindPartial)
}

func (o *Orchestrator) record(trigger model.Trigger, c store.Completion, d time.Duration) {
	metrics.BackupRunsTotal.WithLabelValues(string(trigger), string(c.Status)).Inc()
	metrics.BackupRunDuration.Observe(d.Seconds())
	for _, r := range c.Results {
		metrics.BackupDocumentsTotal.WithLabelValues(r.DocumentType, string(r.Status)).Inc()
		if r.Status == model.BackupStatusSuccess {
			metrics.BackupRecordsTotal.WithLabelValues(r.DocumentType).Add(float64(r.RecordCount))
		}
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, logger *slog.Logger, runID string, trigger model.Trigger, written []SnapshotSheet) {
	if o.snapshots == nil || len(written) == 0 || ctx.Err() != nil {
		return
	}
	key, err := o.snapshots.Put(ctx, Snapshot{RunID: runID, Trigger: trigger, TakenAt: time.Now().UTC(), Sheets: written})
	if err != nil {
		logger.Warn("upload backup snapshot", "error", err)
		return
	}
	logger.Info("uploaded backup snapshot", "key", key)
}
