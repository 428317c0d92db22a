package service

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xuyicheng33/IPC-QUERY/config"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pkg/logger"
	"github.com/xuyicheng33/IPC-QUERY/pkg/metrics"
	"github.com/xuyicheng33/IPC-QUERY/store"
)

// mtimeTolerance absorbs filesystems that round timestamps during copies.
const mtimeTolerance = 1e-9

// Scanner diffs the pdf root against the persisted scan_state fingerprints:
// new and changed files are re-ingested, vanished files are dropped from the
// catalog. Scans run on their own single-worker queue but share the store
// write lock with the importer.
type Scanner struct {
	cfg     config.ScannerConfig
	pdfRoot string
	store   *store.Store
	metrics *metrics.Metrics
	open    store.PDFOpener

	queue chan string
	done  chan struct{}

	mu    sync.Mutex
	jobs  map[string]*model.ScanJob
	order []string
}

func NewScanner(cfg config.ScannerConfig, pdfCfg config.PDFConfig, st *store.Store, m *metrics.Metrics) *Scanner {
	return &Scanner{
		cfg:     cfg,
		pdfRoot: pdfCfg.RootDir,
		store:   st,
		metrics: m,
		open:    openPDF,
		queue:   make(chan string, cfg.QueueSize),
		done:    make(chan struct{}),
		jobs:    make(map[string]*model.ScanJob),
	}
}

func (sc *Scanner) Start() {
	go func() {
		defer close(sc.done)
		for jobID := range sc.queue {
			sc.run(jobID)
		}
	}()
}

func (sc *Scanner) Stop(timeout time.Duration) error {
	close(sc.queue)
	select {
	case <-sc.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scanner did not drain within %s", timeout)
	}
}

// SubmitScan queues a scan of the pdf root, or of one subtree when path is
// non-empty. The subtree must exist.
func (sc *Scanner) SubmitScan(ctx context.Context, subPath string) (model.ScanJob, error) {
	rel, err := normalizeRel(subPath)
	if err != nil {
		return model.ScanJob{}, err
	}
	if rel != "" {
		info, err := os.Stat(underRoot(sc.pdfRoot, rel))
		if err != nil || !info.IsDir() {
			return model.ScanJob{}, model.Validation("scan path %q is not a folder under the pdf root", subPath)
		}
	}

	job := &model.ScanJob{
		ID:        uuid.NewString(),
		Path:      rel,
		Status:    model.JobQueued,
		CreatedAt: time.Now().UTC(),
	}

	sc.mu.Lock()
	sc.jobs[job.ID] = job
	sc.order = append(sc.order, job.ID)
	sc.pruneLocked()
	sc.mu.Unlock()

	select {
	case sc.queue <- job.ID:
	default:
		sc.mu.Lock()
		delete(sc.jobs, job.ID)
		if n := len(sc.order); n > 0 && sc.order[n-1] == job.ID {
			sc.order = sc.order[:n-1]
		}
		sc.mu.Unlock()
		return model.ScanJob{}, model.ErrQueueFull
	}

	logger.Info(ctx, "scan queued", "job_id", job.ID, "path", rel)
	return *job, nil
}

func (sc *Scanner) Job(jobID string) (model.ScanJob, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	job, ok := sc.jobs[jobID]
	if !ok {
		return model.ScanJob{}, model.ErrNotFound
	}
	return *job, nil
}

func (sc *Scanner) Jobs() []model.ScanJob {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]model.ScanJob, 0, len(sc.order))
	for i := len(sc.order) - 1; i >= 0; i-- {
		if job, ok := sc.jobs[sc.order[i]]; ok {
			out = append(out, *job)
		}
	}
	return out
}

func (sc *Scanner) pruneLocked() {
	excess := len(sc.jobs) - sc.cfg.MaxJobsRetained
	if excess <= 0 {
		return
	}
	kept := sc.order[:0]
	for _, id := range sc.order {
		job := sc.jobs[id]
		if excess > 0 && job != nil && model.Terminal(job.Status) {
			delete(sc.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	sc.order = kept
}

func (sc *Scanner) setStatus(jobID string, mutate func(*model.ScanJob)) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if job, ok := sc.jobs[jobID]; ok {
		mutate(job)
	}
}

func (sc *Scanner) run(jobID string) {
	sc.mu.Lock()
	job, ok := sc.jobs[jobID]
	if !ok {
		sc.mu.Unlock()
		return
	}
	rel := job.Path
	sc.mu.Unlock()

	started := time.Now()
	startedUTC := started.UTC()
	sc.setStatus(jobID, func(j *model.ScanJob) {
		j.Status = model.JobRunning
		j.StartedAt = &startedUTC
	})

	ctx := context.WithValue(context.Background(), logger.JobIDKey, jobID)
	summary, err := sc.Scan(ctx, rel)
	summary.ElapsedSec = time.Since(started).Seconds()

	finished := time.Now().UTC()
	status := model.JobSuccess
	if err != nil {
		status = model.JobFailed
		logger.Error(ctx, "scan failed", "path", rel, "error", err)
	} else {
		logger.Info(ctx, "scan finished", "path", rel,
			"scanned", summary.ScannedFiles, "changed", summary.ChangedFiles,
			"deleted", summary.DeletedFiles, "elapsed_s", summary.ElapsedSec)
	}
	sc.metrics.ScanJobs.WithLabelValues(status).Inc()

	sc.setStatus(jobID, func(j *model.ScanJob) {
		j.Status = status
		j.FinishedAt = &finished
		if err != nil {
			j.Error = err.Error()
		} else {
			j.Summary = &summary
		}
	})
}

// Scan walks one subtree, ingests new and changed PDFs, and drops documents
// whose files are gone. It is exported for synchronous use in tests and
// startup scans; HTTP traffic goes through the queue.
func (sc *Scanner) Scan(ctx context.Context, rel string) (model.ScanSummary, error) {
	summary := model.ScanSummary{Path: rel}
	walkRoot := underRoot(sc.pdfRoot, rel)

	entries, err := walkPDFs(sc.pdfRoot, walkRoot)
	if err != nil {
		return summary, err
	}
	summary.ScannedFiles = len(entries)

	known, err := sc.store.ListScanStates(rel)
	if err != nil {
		return summary, err
	}
	knownByPath := make(map[string]model.ScanState, len(known))
	for _, st := range known {
		knownByPath[st.RelativePath] = st
	}

	seen := make(map[string]bool, len(entries))
	var changed []store.DocumentInput
	for _, e := range entries {
		seen[e.RelativePath] = true
		prev, ok := knownByPath[e.RelativePath]
		if ok && prev.Size == e.Size && math.Abs(prev.MTime-e.MTime) <= mtimeTolerance {
			continue
		}
		changed = append(changed, store.DocumentInput{
			RelativePath: e.RelativePath,
			PDFName:      filepath.Base(e.RelativePath),
			AbsPath:      underRoot(sc.pdfRoot, e.RelativePath),
		})
	}
	summary.ChangedFiles = len(changed)

	if len(changed) > 0 {
		ingest, err := sc.store.IngestPDFs(ctx, changed, sc.open)
		summary.IngestSummary = ingest
		if err != nil {
			return summary, err
		}
		sc.metrics.DocsIngested.Add(float64(ingest.DocsIngested))
		sc.metrics.PartsIngested.Add(float64(ingest.PartsIngested))
	}

	var vanished []string
	for _, st := range known {
		if !seen[st.RelativePath] {
			vanished = append(vanished, st.RelativePath)
		}
	}
	summary.DeletedFiles = len(vanished)
	if len(vanished) > 0 {
		docsDeleted, err := sc.store.DeleteVanished(vanished)
		if err != nil {
			return summary, err
		}
		summary.DocsDeleted = docsDeleted
	}

	// Fingerprints are recorded only for files whose extraction did not
	// fail, so a broken PDF is retried on the next scan.
	upserts := make([]store.ScanEntry, 0, len(entries))
	for _, e := range entries {
		if _, failed := summary.DocErrors[e.RelativePath]; failed {
			continue
		}
		upserts = append(upserts, e)
	}
	if err := sc.store.UpsertScanStates(upserts); err != nil {
		return summary, err
	}
	return summary, nil
}

// walkPDFs collects the fingerprints of every *.pdf under walkRoot, with
// paths relative to pdfRoot.
func walkPDFs(pdfRoot, walkRoot string) ([]store.ScanEntry, error) {
	var entries []store.ScanEntry
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == walkRoot {
				return nil // empty root is an empty scan
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".pdf") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(pdfRoot, p)
		if err != nil {
			return err
		}
		entries = append(entries, store.ScanEntry{
			RelativePath: filepath.ToSlash(rel),
			Size:         info.Size(),
			MTime:        float64(info.ModTime().UnixNano()) / 1e9,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
