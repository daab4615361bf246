package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alorle/catalog-sync/internal/batch"
	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/metrics"
	"github.com/alorle/catalog-sync/internal/playlist"
	"github.com/alorle/catalog-sync/internal/port/driven"
	"github.com/alorle/catalog-sync/internal/run"
	"github.com/alorle/catalog-sync/internal/schema"
)

// Callbacks lets a caller observe and steer a run. Every field is optional.
// Callbacks are never invoked concurrently.
type Callbacks struct {
	OnProgress   func(processed, total int)
	OnComplete   func(summary run.Summary)
	OnError      func(err error)
	ShouldCancel func() bool
}

// ImportConfig tunes how hard an import pushes the remote store.
type ImportConfig struct {
	// Concurrency bounds the remote writes in flight.
	Concurrency int
	// Delay is the pause taken after every Concurrency dispatches.
	Delay time.Duration
}

// ImportService turns a playlist into deduplicated catalog rows.
// Series are imported first as a parent content row plus one episode row
// per entry; every other entry becomes a single content row.
type ImportService struct {
	store    driven.RowStore
	resolver *DuplicateResolver
	schema   schema.Schema
	parser   *playlist.Parser
	cfg      ImportConfig
	logger   *slog.Logger
}

// NewImportService creates a new ImportService.
func NewImportService(store driven.RowStore, resolver *DuplicateResolver, s schema.Schema, parser *playlist.Parser, cfg ImportConfig, logger *slog.Logger) *ImportService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 5
	}
	return &ImportService{
		store:    store,
		resolver: resolver,
		schema:   s,
		parser:   parser,
		cfg:      cfg,
		logger:   logger,
	}
}

// Parse reads a playlist into classified entries.
// Returns ErrEmptyPlaylist when nothing importable was found.
func (s *ImportService) Parse(r io.Reader) ([]*playlist.Entry, error) {
	entries, err := s.parser.Parse(r)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyPlaylist
	}
	return entries, nil
}

// PreviewSeries describes one series found in a playlist.
type PreviewSeries struct {
	Name     string `json:"name"`
	Episodes int    `json:"episodes"`
}

// PreviewEntry describes one parsed playlist entry.
type PreviewEntry struct {
	Title      string               `json:"title"`
	URL        string               `json:"url"`
	Logo       string               `json:"logo,omitempty"`
	GroupTitle string               `json:"group_title,omitempty"`
	Type       playlist.ContentType `json:"type"`
}

// Preview is what an import would do, computed without touching the
// remote store.
type Preview struct {
	Total    int             `json:"total"`
	Movies   int             `json:"movies"`
	Episodes int             `json:"episodes"`
	TV       int             `json:"tv"`
	Unknown  int             `json:"unknown"`
	Series   []PreviewSeries `json:"series"`
	Entries  []PreviewEntry  `json:"entries"`
}

// Preview parses and groups a playlist.
func (s *ImportService) Preview(r io.Reader) (Preview, error) {
	entries, err := s.Parse(r)
	if err != nil {
		return Preview{}, err
	}

	counts := playlist.CountByType(entries)
	p := Preview{
		Total:    len(entries),
		Movies:   counts[playlist.TypeMovie],
		Episodes: counts[playlist.TypeSeries],
		TV:       counts[playlist.TypeTV],
		Unknown:  counts[playlist.TypeUnknown],
		Series:   []PreviewSeries{},
		Entries:  make([]PreviewEntry, 0, len(entries)),
	}

	for _, g := range playlist.GroupSeries(entries) {
		p.Series = append(p.Series, PreviewSeries{Name: g.Name, Episodes: len(g.Episodes)})
	}
	for _, e := range entries {
		p.Entries = append(p.Entries, PreviewEntry{
			Title:      e.Title,
			URL:        e.URL,
			Logo:       e.TvgLogo,
			GroupTitle: e.GroupTitle,
			Type:       e.Type,
		})
	}

	return p, nil
}

// importRun carries the per-run bookkeeping shared by both phases.
type importRun struct {
	st     *run.State
	cb     Callbacks
	logger *slog.Logger
	total  int

	// claimed maps titles taken in this run to their *titleClaim, so
	// repeated entries within one playlist wait for the first one.
	claimed sync.Map

	fatalMu sync.Mutex
	fatal   error
}

// titleClaim is held by the first entry to take a title. Later entries
// with the same title wait on done and read present afterwards.
type titleClaim struct {
	done    chan struct{}
	present bool
}

// claim reports owner when the caller now holds title and must release
// it. Otherwise it blocks until the holder settles with the title present
// remotely. A holder that failed hands the title over to the next
// claimant.
func (r *importRun) claim(ctx context.Context, title string) (owner bool, err error) {
	for {
		v, loaded := r.claimed.LoadOrStore(title, &titleClaim{done: make(chan struct{})})
		if !loaded {
			return true, nil
		}
		held := v.(*titleClaim)
		select {
		case <-held.done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		if held.present {
			return false, nil
		}
	}
}

// release settles a claim taken with claim. present means a row with the
// title exists remotely; otherwise the title is freed.
func (r *importRun) release(title string, present bool) {
	v, ok := r.claimed.Load(title)
	if !ok {
		return
	}
	c := v.(*titleClaim)
	c.present = present
	if !present {
		r.claimed.Delete(title)
	}
	close(c.done)
}

func (r *importRun) shouldCancel(ctx context.Context) bool {
	if r.st.CancelRequested() || r.fatalErr() != nil {
		return true
	}
	if ctx.Err() != nil || (r.cb.ShouldCancel != nil && r.cb.ShouldCancel()) {
		r.st.RequestCancel()
		return true
	}
	return false
}

func (r *importRun) setFatal(err error) {
	r.fatalMu.Lock()
	defer r.fatalMu.Unlock()
	if r.fatal == nil {
		r.fatal = err
	}
}

func (r *importRun) fatalErr() error {
	r.fatalMu.Lock()
	defer r.fatalMu.Unlock()
	return r.fatal
}

// progress maps done/total of a phase onto the [lo, hi] span of the
// progress bar and notifies the caller.
func (r *importRun) progress(lo, hi float64, done, total int) {
	if total > 0 {
		r.st.SetProgress(lo + (hi-lo)*float64(done)/float64(total))
	}
	if r.cb.OnProgress != nil {
		r.cb.OnProgress(r.st.Processed(), r.total)
	}
}

// fail marks entry as failed and escalates errors that make the whole
// run pointless.
func (r *importRun) fail(e *playlist.Entry, err error) {
	if settleErr := e.Settle(playlist.StatusError, err.Error()); settleErr != nil {
		r.logger.Warn("failed to settle entry", "title", e.Title, "error", settleErr)
	}
	r.st.RecordItemError(e.Title, err.Error())
	r.st.AddProcessed(1)

	if errors.Is(err, catalog.ErrTableNotConfigured) {
		r.setFatal(err)
	}
}

func (r *importRun) duplicate(e *playlist.Entry) {
	if err := e.Settle(playlist.StatusDuplicate, ""); err != nil {
		r.logger.Warn("failed to settle entry", "title", e.Title, "error", err)
	}
	r.st.AddDuplicates(1)
	r.st.AddProcessed(1)
}

// Import drives entries to the remote store and returns the run summary.
// Per-entry failures are isolated; a missing table configuration fails the
// whole run. Cancellation stops before the next unit of work and is
// reported as a normal completion with partial counts.
func (s *ImportService) Import(ctx context.Context, entries []*playlist.Entry, st *run.State, cb Callbacks) run.Summary {
	r := &importRun{
		st:     st,
		cb:     cb,
		logger: s.logger.With("run_id", st.ID()),
		total:  len(entries),
	}
	st.SetTotal(len(entries))

	groups := playlist.GroupSeries(entries)
	standalone := playlist.Standalone(entries)

	r.logger.Info("import started",
		"entries", len(entries),
		"series", len(groups),
		"standalone", len(standalone))

	if err := s.preflight(); err != nil {
		return s.finish(r, entries, err)
	}

	phase2Start := 0.0
	if len(groups) > 0 {
		phase2Start = 50
		if err := s.importSeries(ctx, r, groups); err != nil {
			return s.finish(r, entries, err)
		}
	}

	if !r.shouldCancel(ctx) {
		s.importStandalone(ctx, r, standalone, phase2Start)
	}

	return s.finish(r, entries, r.fatalErr())
}

// preflight fails when a table the import writes to is not bound.
func (s *ImportService) preflight() error {
	for _, kind := range []catalog.TableKind{catalog.TableContents, catalog.TableEpisodes} {
		if _, err := s.schema.Table(kind); err != nil || !s.store.Configured(kind) {
			return fmt.Errorf("%w: %s", catalog.ErrTableNotConfigured, kind)
		}
	}
	return nil
}

func (s *ImportService) finish(r *importRun, entries []*playlist.Entry, err error) run.Summary {
	if err != nil {
		r.logger.Error("import failed", "error", err)
		r.st.Fail(err)
		if r.cb.OnError != nil {
			r.cb.OnError(err)
		}
	}

	r.st.Complete()
	summary := r.st.Summary()

	statuses := make(map[playlist.Status]int)
	for _, e := range entries {
		statuses[e.Status()]++
	}
	for status, n := range statuses {
		metrics.RecordEntries(string(status), n)
	}

	r.logger.Info("import finished",
		"outcome", summary.Outcome,
		"uploaded", summary.Counters.Total,
		"movies", summary.Counters.Movies,
		"series", summary.Counters.Series,
		"tv", summary.Counters.TV,
		"duplicates", summary.Duplicates,
		"failed", summary.Failed)

	if r.cb.OnComplete != nil {
		r.cb.OnComplete(summary)
	}
	return summary
}

// importSeries runs phase one: one group at a time, each group's episodes
// through the batch engine. It covers the first half of the progress bar.
func (s *ImportService) importSeries(ctx context.Context, r *importRun, groups []playlist.SeriesGroup) error {
	totalEpisodes := 0
	for _, g := range groups {
		totalEpisodes += len(g.Episodes)
	}

	done := 0
	for _, g := range groups {
		if r.shouldCancel(ctx) {
			break
		}

		s.importGroup(ctx, r, g, func(n int) {
			r.progress(0, 50, done+n, totalEpisodes)
		})
		done += len(g.Episodes)

		if err := r.fatalErr(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ImportService) importGroup(ctx context.Context, r *importRun, g playlist.SeriesGroup, onProgress func(done int)) {
	logger := r.logger.With("series", g.Name)

	owner, err := r.claim(ctx, g.Name)
	if err != nil {
		for _, e := range g.Episodes {
			r.fail(e, err)
		}
		onProgress(len(g.Episodes))
		return
	}
	if !owner {
		for _, e := range g.Episodes {
			r.duplicate(e)
		}
		onProgress(len(g.Episodes))
		return
	}
	present := false
	defer func() { r.release(g.Name, present) }()

	exists, err := s.resolver.Exists(ctx, g.Name, catalog.TableContents)
	if err != nil {
		logger.Error("series duplicate check failed", "error", err)
		for _, e := range g.Episodes {
			r.fail(e, err)
		}
		onProgress(len(g.Episodes))
		return
	}
	if exists {
		present = true
		logger.Debug("series already in catalog", "episodes", len(g.Episodes))
		for _, e := range g.Episodes {
			r.duplicate(e)
		}
		onProgress(len(g.Episodes))
		return
	}

	parent, err := s.store.Create(ctx, catalog.TableContents, s.seriesFields(g))
	if err != nil {
		logger.Error("failed to create series", "error", err)
		for _, e := range g.Episodes {
			r.fail(e, fmt.Errorf("failed to create series %q: %w", g.Name, err))
		}
		onProgress(len(g.Episodes))
		return
	}
	present = true
	r.st.RecordSeries()
	logger.Debug("series created", "row_id", parent.ID)

	res := batch.Run(ctx, g.Episodes, func(ctx context.Context, e *playlist.Entry) (catalog.Row, error) {
		if err := e.Transition(playlist.StatusProcessed, ""); err != nil {
			return catalog.Row{}, err
		}
		row, err := s.store.Create(ctx, catalog.TableEpisodes, s.episodeFields(e, parent.ID))
		if err != nil {
			return catalog.Row{}, err
		}
		if err := e.Transition(playlist.StatusUploaded, ""); err != nil {
			return catalog.Row{}, err
		}
		r.st.RecordUploaded()
		r.st.AddProcessed(1)
		return row, nil
	}, batch.Options[*playlist.Entry]{
		Concurrency:  s.cfg.Concurrency,
		Delay:        s.cfg.Delay,
		ShouldCancel: func() bool { return r.shouldCancel(ctx) },
		OnError: func(err error, e *playlist.Entry, _ int) {
			logger.Warn("failed to import episode", "title", e.Title, "error", err)
			r.fail(e, err)
		},
		OnProgress: func(processed, _ int) { onProgress(processed) },
	})

	logger.Debug("series episodes imported", "created", len(res.Results), "failed", res.Failed, "cancelled", res.Cancelled)
}

// importStandalone runs phase two over every entry still pending.
func (s *ImportService) importStandalone(ctx context.Context, r *importRun, entries []*playlist.Entry, lo float64) {
	var pending []*playlist.Entry
	for _, e := range entries {
		if e.Status() == playlist.StatusPending {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		r.progress(lo, 100, 1, 1)
		return
	}

	res := batch.Run(ctx, pending, func(ctx context.Context, e *playlist.Entry) (bool, error) {
		return s.importEntry(ctx, r, e)
	}, batch.Options[*playlist.Entry]{
		Concurrency:  s.cfg.Concurrency,
		Delay:        s.cfg.Delay,
		ShouldCancel: func() bool { return r.shouldCancel(ctx) },
		OnError: func(err error, e *playlist.Entry, _ int) {
			r.logger.Warn("failed to import entry", "title", e.Title, "type", e.Type, "error", err)
			r.fail(e, err)
		},
		OnProgress: func(processed, total int) { r.progress(lo, 100, processed, total) },
	})

	r.logger.Debug("standalone entries imported", "settled", len(res.Results), "failed", res.Failed, "cancelled", res.Cancelled)
}

// importEntry settles one standalone entry. It reports true when a row
// was created and false when the entry was a duplicate.
func (s *ImportService) importEntry(ctx context.Context, r *importRun, e *playlist.Entry) (bool, error) {
	if err := e.Transition(playlist.StatusProcessed, ""); err != nil {
		return false, err
	}
	if e.Title == "" {
		return false, ErrEmptyTitle
	}

	owner, err := r.claim(ctx, e.Title)
	if err != nil {
		return false, err
	}
	if !owner {
		r.duplicate(e)
		return false, nil
	}
	present := false
	defer func() { r.release(e.Title, present) }()

	exists, err := s.resolver.Exists(ctx, e.Title, catalog.TableContents)
	if err != nil {
		return false, err
	}
	if exists {
		present = true
		r.duplicate(e)
		return false, nil
	}

	if _, err := s.store.Create(ctx, catalog.TableContents, s.contentFields(e)); err != nil {
		return false, err
	}
	present = true
	if err := e.Transition(playlist.StatusUploaded, ""); err != nil {
		return false, err
	}

	switch e.Type {
	case playlist.TypeMovie:
		r.st.RecordMovie()
	case playlist.TypeTV:
		r.st.RecordTV()
	default:
		r.st.RecordUploaded()
	}
	r.st.AddProcessed(1)
	return true, nil
}

func (s *ImportService) seriesFields(g playlist.SeriesGroup) map[string]any {
	t, _ := s.schema.Table(catalog.TableContents)
	first := g.Episodes[0]

	fields := map[string]any{
		t.Field(schema.FieldTitle): g.Name,
		t.Field(schema.FieldType):  string(playlist.TypeSeries),
	}
	setIfNotEmpty(fields, t.Field(schema.FieldImage), first.TvgLogo)
	setIfNotEmpty(fields, t.Field(schema.FieldCategory), first.GroupTitle)
	setIfNotEmpty(fields, t.Field(schema.FieldTvgID), first.TvgID)
	return fields
}

func (s *ImportService) episodeFields(e *playlist.Entry, parentID int) map[string]any {
	t, _ := s.schema.Table(catalog.TableEpisodes)
	season, episode := playlist.EpisodeNumbers(e.Title)

	fields := map[string]any{
		t.Field(schema.FieldTitle):   e.Title,
		t.Field(schema.FieldURL):     e.URL,
		t.Field(schema.FieldContent): []int{parentID},
		t.Field(schema.FieldSeason):  season,
		t.Field(schema.FieldEpisode): episode,
	}
	setIfNotEmpty(fields, t.Field(schema.FieldImage), e.TvgLogo)
	return fields
}

func (s *ImportService) contentFields(e *playlist.Entry) map[string]any {
	t, _ := s.schema.Table(catalog.TableContents)

	fields := map[string]any{
		t.Field(schema.FieldTitle): e.Title,
		t.Field(schema.FieldURL):   e.URL,
		t.Field(schema.FieldType):  string(e.Type),
	}
	setIfNotEmpty(fields, t.Field(schema.FieldImage), e.TvgLogo)
	setIfNotEmpty(fields, t.Field(schema.FieldCategory), e.GroupTitle)
	setIfNotEmpty(fields, t.Field(schema.FieldTvgID), e.TvgID)
	return fields
}

func setIfNotEmpty(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
