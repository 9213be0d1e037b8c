// Package ingest drives per-file ingestion end to end: parse → classify →
// normalize → persist → conflict scan. One bad file never aborts a batch;
// one bad row never aborts a file unless the document's failure rate
// crosses the configured threshold.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealroom-cli/internal/classify"
	"github.com/sells-group/dealroom-cli/internal/config"
	"github.com/sells-group/dealroom-cli/internal/consistency"
	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/parser"
	"github.com/sells-group/dealroom-cli/internal/store"
	"github.com/sells-group/dealroom-cli/internal/units"
	"github.com/sells-group/dealroom-cli/internal/vdr"
)

// Orchestrator ingests files for exactly one deal. All persistence and
// conflict scanning runs on the caller's goroutine; only parse/classify of
// upcoming files is allowed to run ahead.
type Orchestrator struct {
	store      store.Store
	classifier classify.Classifier
	normalizer *units.Normalizer
	checker    *consistency.Checker
	cfg        config.IngestConfig
	pdfCfg     config.PDFConfig
	audit      *store.AuditLog
}

// New builds an orchestrator over one deal's store.
func New(st store.Store, cl classify.Classifier, norm *units.Normalizer, cfg config.IngestConfig, pdfCfg config.PDFConfig) *Orchestrator {
	return &Orchestrator{
		store:      st,
		classifier: cl,
		normalizer: norm,
		checker:    consistency.New(st),
		cfg:        cfg,
		pdfCfg:     pdfCfg,
	}
}

// WithAudit attaches a per-deal audit log.
func (o *Orchestrator) WithAudit(a *store.AuditLog) *Orchestrator {
	o.audit = a
	return o
}

// prepared is one file's parse+classify+normalize output, ready for the
// serialized persist stage. The document ID is assigned up front so facts
// can reference it before the document row exists.
type prepared struct {
	entry        vdr.Entry
	path         string
	docID        string
	runID        string
	kind         model.DocKind
	parseErr     error
	facts        []model.Fact
	cells        []model.CellFact
	observations int
	failures     int
	skipReasons  []string
}

func (p *prepared) skip(reason string, failed bool) {
	if len(p.skipReasons) < 50 {
		p.skipReasons = append(p.skipReasons, reason)
	}
	if failed {
		p.failures++
	}
}

// IngestFile runs the whole pipeline for a single file.
func (o *Orchestrator) IngestFile(ctx context.Context, path string, entry vdr.Entry) model.FileResult {
	if entry.Path == "" {
		entry.Path = path
	}
	p := o.prepare(ctx, "", entry, uuid.NewString())
	return o.persist(ctx, p)
}

// IngestVDR filters the collaborator's listing to ingestible documents and
// ingests them sequentially. Parsing and classification of upcoming files
// run ahead up to the configured prefetch depth; persistence and conflict
// scanning stay serialized so each file's scan observes all facts committed
// by its predecessors. Cancellation takes effect between files, never
// mid-file, and yields a partial summary with committed work intact.
func (o *Orchestrator) IngestVDR(ctx context.Context, root string, listing []vdr.Entry) (*model.IngestSummary, error) {
	runID := uuid.NewString()
	started := time.Now()

	filtered := vdr.Filter(listing, o.cfg.Categories, nil)
	summary := &model.IngestSummary{
		RunID:        runID,
		Status:       model.RunComplete,
		FilesListed:  len(listing),
		FilesSkipped: len(listing) - len(filtered),
		StartedAt:    started.UTC(),
	}
	if deal, err := o.store.GetDeal(ctx); err == nil {
		summary.DealID = deal.ID
	}

	prefetch := o.cfg.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	files := make(chan *prepared, prefetch)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(files)
		for _, entry := range filtered {
			p := o.prepare(gctx, root, entry, runID)
			select {
			case files <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for p := range files {
		if ctx.Err() != nil {
			summary.Status = model.RunPartial
			break
		}
		// A file that started persisting finishes even if the run is
		// cancelled meanwhile; cancellation lands between files.
		fr := o.persist(context.WithoutCancel(ctx), p)
		summary.Add(fr)
	}
	if err := g.Wait(); err != nil {
		summary.Status = model.RunPartial
	}
	if summary.Status == model.RunComplete && summary.FilesFailed > 0 && summary.FilesIngested == 0 {
		summary.Status = model.RunFailed
	}
	summary.FinishedAt = time.Now().UTC()

	if o.audit != nil {
		o.audit.Record("ingest_vdr", map[string]int{
			"files_ingested": summary.FilesIngested,
			"files_failed":   summary.FilesFailed,
			"facts_added":    summary.FactsAdded,
			"conflicts":      summary.ConflictsFound,
		}, time.Since(started), nil)
	}
	zap.L().Info("ingestion run finished",
		zap.String("run_id", runID),
		zap.String("status", string(summary.Status)),
		zap.Int("files_ingested", summary.FilesIngested),
		zap.Int("files_failed", summary.FilesFailed),
		zap.Int("facts_added", summary.FactsAdded),
		zap.Int("conflicts", summary.ConflictsFound),
	)
	return summary, nil
}

// prepare runs the stages that touch no storage: parse, classify, normalize.
// Safe to run ahead of the persist stage.
func (o *Orchestrator) prepare(ctx context.Context, root string, entry vdr.Entry, runID string) *prepared {
	path := entry.Path
	if root != "" {
		path = filepath.Join(root, entry.Path)
	}
	p := &prepared{
		entry: entry,
		path:  path,
		docID: uuid.NewString(),
		runID: runID,
		kind:  model.KindForPath(path),
	}
	if p.kind == "" {
		p.parseErr = faults.Newf(faults.Parse, "no parser for extension %q", filepath.Ext(path))
		return p
	}

	src, err := parser.ForKind(p.kind, o.pdfCfg)
	if err != nil {
		p.parseErr = err
		return p
	}
	obs, err := parser.Collect(ctx, src, path)
	if err != nil {
		p.parseErr = err
		return p
	}
	p.observations = len(obs)

	docCtx := classify.DocContext{
		Filename: filepath.Base(path),
		Category: entry.Category,
		Label:    entry.Label,
		CaseName: model.DefaultCase,
	}
	for _, ob := range obs {
		o.prepareObservation(ctx, p, ob, docCtx)
	}

	if threshold := o.failureThreshold(); p.observations > 0 {
		ratio := float64(p.failures) / float64(p.observations)
		if ratio > threshold {
			p.parseErr = faults.Newf(faults.Classification,
				"%d of %d rows failed (%.0f%%), above the %.0f%% threshold; reasons include: %s",
				p.failures, p.observations, ratio*100, threshold*100,
				strings.Join(firstN(p.skipReasons, 3), "; "))
		}
	}
	return p
}

func (o *Orchestrator) prepareObservation(ctx context.Context, p *prepared, ob model.RawObservation, docCtx classify.DocContext) {
	cl, err := o.classifier.Classify(ctx, ob, docCtx)
	if err != nil {
		p.skip(fmt.Sprintf("%s: classify: %v", ob.Location, err), true)
		return
	}

	if p.kind == model.KindSpreadsheet {
		p.cells = append(p.cells, cellFromObservation(p.docID, ob, cl))
		if ob.Circular {
			p.skip(fmt.Sprintf("%s: circular formula %q cached %s; excluded from re-evaluation",
				ob.Location, ob.FormulaText, ob.RawText), false)
		}
	}
	if ob.NumericValue == nil {
		return
	}
	if cl.Category == model.CategoryUnclassified {
		// Kept as a cell fact (spreadsheets) but not promoted to a typed row.
		p.skip(fmt.Sprintf("%s: unclassified", ob.Location), false)
		return
	}

	value, unit := *ob.NumericValue, cl.Unit
	if class, ok := classify.UnitClassFor(cl.Table); ok && unit != "" {
		res := o.normalizer.Normalize(value, unit, class)
		for _, flag := range res.Flags {
			p.skip(fmt.Sprintf("%s: %s (%s)", ob.Location, flag, unit), false)
		}
		for _, conv := range res.Conversions {
			zap.L().Debug("unit conversion applied",
				zap.String("location", ob.Location),
				zap.String("from", conv.From),
				zap.String("to", conv.To),
				zap.Float64("factor", conv.Factor),
			)
		}
		value, unit = res.Value, res.Unit
	}

	caseName := cl.CaseName
	if caseName == "" {
		caseName = model.DefaultCase
	}
	entity := cl.Entity
	if entity == "" {
		entity = "asset"
	}
	p.facts = append(p.facts, model.Fact{
		DocumentID:  p.docID,
		Table:       cl.Table,
		CaseName:    caseName,
		Entity:      entity,
		SemanticKey: cl.SemanticKey,
		Period:      cl.Period,
		RawValue:    *ob.NumericValue,
		RawUnit:     cl.Unit,
		Value:       value,
		Unit:        unit,
		Confidence:  cl.Confidence,
		Provenance:  ob.Location,
	})
}

// persist is the serialized stage: document row, case rows, facts, cells,
// then the conflict scan against everything previously committed.
func (o *Orchestrator) persist(ctx context.Context, p *prepared) model.FileResult {
	started := time.Now()
	fr := model.FileResult{
		Path:        p.entry.Path,
		DocumentID:  p.docID,
		RowsSkipped: len(p.skipReasons),
		SkipReasons: p.skipReasons,
	}

	if p.kind == "" {
		// Nothing can parse this file; no document row is created.
		fr.DocumentID = ""
		return fail(fr, model.PhaseFailed, p.parseErr, started)
	}

	doc := model.SourceDocument{
		ID:         p.docID,
		Filename:   filepath.Base(p.path),
		FolderPath: filepath.Dir(p.entry.Path),
		Kind:       p.kind,
		Category:   p.entry.Category,
		Label:      p.entry.Label,
		RunID:      p.runID,
		Status:     model.DocIngesting,
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		return fail(fr, model.PhaseFailed, err, started)
	}

	if p.parseErr != nil {
		if err := o.store.FinishDocument(ctx, p.docID, model.DocFailed, p.parseErr.Error(), 0, 0); err != nil {
			zap.L().Warn("failed to mark document failed", zap.String("doc", p.docID), zap.Error(err))
		}
		return fail(fr, model.PhaseFailed, p.parseErr, started)
	}

	seenCases := map[string]bool{}
	var inserted []consistency.Inserted
	for _, f := range p.facts {
		if !seenCases[f.CaseName] {
			if err := o.store.EnsureCase(ctx, f.CaseName); err != nil {
				return fail(fr, model.PhasePersisting, err, started)
			}
			seenCases[f.CaseName] = true
		}
		_, prior, err := o.store.UpsertFact(ctx, f)
		if err != nil {
			if faults.Is(err, faults.Validation) {
				// A malformed record aborts only itself.
				fr.RowsSkipped++
				fr.SkipReasons = append(fr.SkipReasons, fmt.Sprintf("%s: %v", f.Provenance, err))
				continue
			}
			return fail(fr, model.PhasePersisting, err, started)
		}
		inserted = append(inserted, consistency.Inserted{Fact: f, Prior: prior})
		fr.FactsAdded++
	}
	for _, cell := range p.cells {
		if _, err := o.store.InsertCellFact(ctx, cell); err != nil {
			return fail(fr, model.PhasePersisting, err, started)
		}
		fr.CellsAdded++
	}

	scan, err := o.checker.Scan(ctx, inserted)
	if err != nil {
		return fail(fr, model.PhaseConflictScanning, err, started)
	}
	fr.Conflicts = scan.Conflicts

	if err := o.store.FinishDocument(ctx, p.docID, model.DocComplete, "", len(p.cells), tableCount(inserted)); err != nil {
		return fail(fr, model.PhaseConflictScanning, err, started)
	}

	fr.Status = model.DocComplete
	fr.Phase = model.PhaseComplete
	fr.Duration = time.Since(started).Milliseconds()
	if o.audit != nil {
		o.audit.Record("ingest_file", map[string]int{
			"facts": fr.FactsAdded, "cells": fr.CellsAdded,
			"skipped": fr.RowsSkipped, "conflicts": fr.Conflicts,
		}, time.Since(started), nil)
	}
	zap.L().Info("file ingested",
		zap.String("path", p.entry.Path),
		zap.Int("facts", fr.FactsAdded),
		zap.Int("skipped", fr.RowsSkipped),
		zap.Int("conflicts", fr.Conflicts),
	)
	return fr
}

func (o *Orchestrator) failureThreshold() float64 {
	if o.cfg.FailureRateThreshold > 0 {
		return o.cfg.FailureRateThreshold
	}
	return 0.25
}

func fail(fr model.FileResult, phase model.IngestPhase, err error, started time.Time) model.FileResult {
	fr.Status = model.DocFailed
	fr.Phase = phase
	fr.Error = err.Error()
	fr.Duration = time.Since(started).Milliseconds()
	zap.L().Warn("file ingestion failed",
		zap.String("path", fr.Path),
		zap.String("phase", string(phase)),
		zap.Error(err),
	)
	return fr
}

func cellFromObservation(docID string, ob model.RawObservation, cl model.Classification) model.CellFact {
	dataType := model.CellTypeText
	if ob.NumericValue != nil {
		dataType = model.CellTypeNumeric
	}
	if ob.FormulaText != "" {
		dataType = model.CellTypeFormula
	}
	if ob.Circular {
		dataType = model.CellTypeCircular
	}
	cell := model.CellFact{
		DocumentID:   docID,
		Sheet:        ob.Sheet,
		Address:      ob.Address,
		Row:          ob.Row,
		Col:          ob.Col,
		RawText:      ob.RawText,
		NumericValue: ob.NumericValue,
		Formula:      ob.FormulaText,
		DataType:     dataType,
		IsAssumption: cl.IsAssumption,
		IsOutput:     cl.IsOutput,
		CaseTag:      cl.CaseName,
	}
	if len(ob.ContextHeaders) > 0 {
		cell.RowHeader = ob.ContextHeaders[0]
	}
	if len(ob.ContextHeaders) > 1 {
		cell.ColHeader = ob.ContextHeaders[1]
	}
	return cell
}

func tableCount(inserted []consistency.Inserted) int {
	seen := map[model.FactTable]bool{}
	for _, ins := range inserted {
		seen[ins.Fact.Table] = true
	}
	return len(seen)
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
