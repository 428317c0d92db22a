package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
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

var pdfMagic = []byte("%PDF-")

// acceptedContentTypes for uploads. Browsers send octet-stream or nothing
// for drag-and-drop; the %PDF- magic check is what actually gates content.
var acceptedContentTypes = map[string]bool{
	"":                         true,
	"application/pdf":          true,
	"application/octet-stream": true,
}

// Importer owns the async upload pipeline: validate, stage, queue, promote
// into the pdf root with a backup, ingest, and roll back on failure. It also
// hosts the synchronous document and folder mutations, which share the
// store's write lock with the ingest path.
type Importer struct {
	cfg       config.ImporterConfig
	pdfRoot   string
	uploadDir string
	store     *store.Store
	metrics   *metrics.Metrics
	open      store.PDFOpener

	queue chan string
	done  chan struct{}

	mu   sync.Mutex
	jobs map[string]*model.ImportJob
	// order holds job ids oldest first, for retention pruning.
	order []string
}

func NewImporter(cfg config.ImporterConfig, pdfCfg config.PDFConfig, st *store.Store, m *metrics.Metrics) *Importer {
	return &Importer{
		cfg:       cfg,
		pdfRoot:   pdfCfg.RootDir,
		uploadDir: pdfCfg.UploadDir,
		store:     st,
		metrics:   m,
		open:      openPDF,
		queue:     make(chan string, cfg.QueueSize),
		done:      make(chan struct{}),
		jobs:      make(map[string]*model.ImportJob),
	}
}

// SetOpener replaces the PDF opener. Used by tests that feed synthetic
// page sources instead of real files.
func (im *Importer) SetOpener(open store.PDFOpener) {
	im.open = open
}

// Start launches the single worker goroutine.
func (im *Importer) Start() {
	go func() {
		defer close(im.done)
		for jobID := range im.queue {
			im.run(jobID)
		}
	}()
}

// Stop closes the queue and waits for the worker to drain it, up to timeout.
// Jobs are never cancelled mid-flight.
func (im *Importer) Stop(timeout time.Duration) error {
	close(im.queue)
	select {
	case <-im.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("importer did not drain within %s", timeout)
	}
}

// SubmitUpload validates an uploaded PDF, stages it in the upload directory
// and enqueues an import job. Validation failures are synchronous; a full
// queue leaves nothing staged behind.
func (im *Importer) SubmitUpload(ctx context.Context, filename string, data []byte, contentType, targetDir string) (model.ImportJob, error) {
	if err := validPDFName(filename); err != nil {
		return model.ImportJob{}, err
	}
	dir, err := normalizeRel(targetDir)
	if err != nil {
		return model.ImportJob{}, err
	}
	if len(data) == 0 {
		return model.ImportJob{}, model.Validation("empty upload")
	}
	if maxBytes := int64(im.cfg.MaxFileSizeMB) << 20; int64(len(data)) > maxBytes {
		return model.ImportJob{}, model.Validation("file exceeds the %d MB limit", im.cfg.MaxFileSizeMB)
	}
	if !acceptedContentTypes[strings.ToLower(strings.TrimSpace(contentType))] {
		return model.ImportJob{}, model.Validation("unsupported content type %q", contentType)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return model.ImportJob{}, model.Validation("file is not a PDF")
	}

	jobID := uuid.NewString()
	staged := filepath.Join(im.uploadDir, jobID+"__"+filename)
	if err := os.MkdirAll(im.uploadDir, 0o755); err != nil {
		return model.ImportJob{}, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return model.ImportJob{}, fmt.Errorf("stage upload: %w", err)
	}

	job := &model.ImportJob{
		ID:         jobID,
		Filename:   filename,
		TargetDir:  dir,
		StagedPath: staged,
		Status:     model.JobQueued,
		CreatedAt:  time.Now().UTC(),
	}

	im.mu.Lock()
	im.jobs[jobID] = job
	im.order = append(im.order, jobID)
	im.pruneLocked()
	im.mu.Unlock()

	select {
	case im.queue <- jobID:
	default:
		os.Remove(staged)
		im.mu.Lock()
		delete(im.jobs, jobID)
		if n := len(im.order); n > 0 && im.order[n-1] == jobID {
			im.order = im.order[:n-1]
		}
		im.mu.Unlock()
		return model.ImportJob{}, model.ErrQueueFull
	}

	logger.Info(ctx, "upload queued", "job_id", jobID, "filename", filename, "target_dir", dir)
	return *job, nil
}

// Job returns a snapshot of one job.
func (im *Importer) Job(jobID string) (model.ImportJob, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	job, ok := im.jobs[jobID]
	if !ok {
		return model.ImportJob{}, model.ErrNotFound
	}
	return *job, nil
}

// Jobs returns snapshots of all retained jobs, newest first.
func (im *Importer) Jobs() []model.ImportJob {
	im.mu.Lock()
	defer im.mu.Unlock()
	out := make([]model.ImportJob, 0, len(im.order))
	for i := len(im.order) - 1; i >= 0; i-- {
		if job, ok := im.jobs[im.order[i]]; ok {
			out = append(out, *job)
		}
	}
	return out
}

// pruneLocked drops the oldest terminal jobs beyond the retention cap.
// Queued and running jobs are never pruned.
func (im *Importer) pruneLocked() {
	excess := len(im.jobs) - im.cfg.MaxJobsRetained
	if excess <= 0 {
		return
	}
	kept := im.order[:0]
	for _, id := range im.order {
		job := im.jobs[id]
		if excess > 0 && job != nil && model.Terminal(job.Status) {
			delete(im.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	im.order = kept
}

func (im *Importer) setStatus(jobID string, mutate func(*model.ImportJob)) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if job, ok := im.jobs[jobID]; ok {
		mutate(job)
	}
}

func (im *Importer) run(jobID string) {
	im.mu.Lock()
	job, ok := im.jobs[jobID]
	if !ok {
		im.mu.Unlock()
		return
	}
	staged, filename, targetDir := job.StagedPath, job.Filename, job.TargetDir
	im.mu.Unlock()

	started := time.Now()
	startedUTC := started.UTC()
	im.setStatus(jobID, func(j *model.ImportJob) {
		j.Status = model.JobRunning
		j.StartedAt = &startedUTC
	})

	ctx := context.WithValue(context.Background(), logger.JobIDKey, jobID)
	summary, err := im.ingestStaged(ctx, staged, filename, targetDir)

	finished := time.Now().UTC()
	elapsed := time.Since(started).Seconds()
	status := model.JobSuccess
	if err != nil {
		status = model.JobFailed
		logger.Error(ctx, "import failed", "filename", filename, "error", err)
	} else {
		logger.Info(ctx, "import finished", "filename", filename,
			"parts", summary.PartsIngested, "elapsed_s", elapsed)
	}
	im.metrics.ImportJobs.WithLabelValues(status).Inc()

	im.setStatus(jobID, func(j *model.ImportJob) {
		j.Status = status
		j.FinishedAt = &finished
		j.ElapsedSec = elapsed
		if err != nil {
			j.Error = err.Error()
		} else {
			j.Summary = &summary
		}
	})
}

// ingestStaged promotes the staged file into the pdf root and ingests it.
// Any existing file at the destination is kept as a backup until the ingest
// commits; on failure the backup is restored and the promotion undone.
func (im *Importer) ingestStaged(ctx context.Context, staged, filename, targetDir string) (model.IngestSummary, error) {
	relPath := filename
	if targetDir != "" {
		relPath = targetDir + "/" + filename
	}
	dest := underRoot(im.pdfRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return model.IngestSummary{}, fmt.Errorf("create target dir: %w", err)
	}

	backup := ""
	if _, err := os.Stat(dest); err == nil {
		// Sibling of the destination, so restore is a same-directory rename.
		backup = filepath.Join(filepath.Dir(dest), "."+filename+"."+uuid.NewString()+".bak")
		if err := moveFile(dest, backup); err != nil {
			return model.IngestSummary{}, fmt.Errorf("back up existing file: %w", err)
		}
	}
	if err := moveFile(staged, dest); err != nil {
		if backup != "" {
			if rerr := moveFile(backup, dest); rerr != nil {
				logger.Error(ctx, "backup restore failed", "document", relPath, "error", rerr)
			}
		}
		return model.IngestSummary{}, fmt.Errorf("promote upload: %w", err)
	}

	rollback := func() {
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			logger.Error(ctx, "rollback remove failed", "document", relPath, "error", err)
		}
		if backup != "" {
			if err := moveFile(backup, dest); err != nil {
				logger.Error(ctx, "backup restore failed", "document", relPath, "error", err)
			}
		}
	}

	inputs := []store.DocumentInput{{RelativePath: relPath, PDFName: filename, AbsPath: dest}}
	summary, err := im.store.IngestPDFs(ctx, inputs, im.open)
	if err != nil {
		rollback()
		return summary, err
	}
	if msg, failed := summary.DocErrors[relPath]; failed {
		rollback()
		return summary, fmt.Errorf("extraction failed: %s", msg)
	}

	if info, err := os.Stat(dest); err == nil {
		mtime := float64(info.ModTime().UnixNano()) / 1e9
		if err := im.store.UpsertScanStates([]store.ScanEntry{
			{RelativePath: relPath, Size: info.Size(), MTime: mtime},
		}); err != nil {
			logger.Warn(ctx, "scan state update failed", "document", relPath, "error", err)
		}
	}

	if backup != "" {
		if err := os.Remove(backup); err != nil {
			logger.Warn(ctx, "stale backup not removed", "path", backup, "error", err)
		}
	}

	im.metrics.DocsIngested.Add(float64(summary.DocsIngested))
	im.metrics.PartsIngested.Add(float64(summary.PartsIngested))
	return summary, nil
}

// moveFile renames src to dst, falling back to copy-and-remove when the two
// live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// activeJobFor reports whether a queued or running job targets relPath.
func (im *Importer) activeJobFor(relPath string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	for _, job := range im.jobs {
		if model.Terminal(job.Status) {
			continue
		}
		jobRel := job.Filename
		if job.TargetDir != "" {
			jobRel = job.TargetDir + "/" + job.Filename
		}
		if jobRel == relPath {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document from the catalog and its file from the
// pdf root. A bare filename is accepted when it is unambiguous.
func (im *Importer) DeleteDocument(ctx context.Context, pathOrName string) (model.Document, store.DeleteCounts, error) {
	doc, err := im.store.ResolveDocument(pathOrName)
	if err != nil {
		return model.Document{}, store.DeleteCounts{}, err
	}
	if im.activeJobFor(doc.RelativePath) {
		return model.Document{}, store.DeleteCounts{}, model.Conflict(
			fmt.Sprintf("an import job for %q is still in progress", doc.RelativePath))
	}

	counts, err := im.store.DeleteDocument(doc.RelativePath)
	if err != nil {
		return model.Document{}, store.DeleteCounts{}, err
	}
	if err := os.Remove(underRoot(im.pdfRoot, doc.RelativePath)); err != nil && !os.IsNotExist(err) {
		logger.Warn(ctx, "pdf file not removed", "document", doc.RelativePath, "error", err)
	}
	logger.Info(ctx, "document deleted", "document", doc.RelativePath, "parts", counts.Parts)
	return doc, counts, nil
}

// RenameDocument renames a document within its folder, moving the file and
// the catalog rows together.
func (im *Importer) RenameDocument(ctx context.Context, pathOrName, newName string) (model.Document, error) {
	if err := validPDFName(newName); err != nil {
		return model.Document{}, err
	}
	doc, err := im.store.ResolveDocument(pathOrName)
	if err != nil {
		return model.Document{}, err
	}
	newRel := newName
	if dir := path.Dir(doc.RelativePath); dir != "." {
		newRel = dir + "/" + newName
	}
	return im.relocate(ctx, doc, newRel)
}

// MoveDocument moves a document into another folder under the pdf root.
// The target folder must already exist.
func (im *Importer) MoveDocument(ctx context.Context, pathOrName, targetDir string) (model.Document, error) {
	dir, err := normalizeRel(targetDir)
	if err != nil {
		return model.Document{}, err
	}
	if dir != "" {
		info, err := os.Stat(underRoot(im.pdfRoot, dir))
		if err != nil || !info.IsDir() {
			return model.Document{}, model.Validation("target folder %q does not exist", dir)
		}
	}
	doc, err := im.store.ResolveDocument(pathOrName)
	if err != nil {
		return model.Document{}, err
	}
	newRel := doc.PDFName
	if dir != "" {
		newRel = dir + "/" + doc.PDFName
	}
	return im.relocate(ctx, doc, newRel)
}

func (im *Importer) relocate(ctx context.Context, doc model.Document, newRel string) (model.Document, error) {
	if newRel == doc.RelativePath {
		return doc, nil
	}
	if im.activeJobFor(doc.RelativePath) || im.activeJobFor(newRel) {
		return model.Document{}, model.Conflict("an import job for this document is still in progress")
	}

	oldAbs := underRoot(im.pdfRoot, doc.RelativePath)
	newAbs := underRoot(im.pdfRoot, newRel)
	if _, err := os.Stat(newAbs); err == nil {
		return model.Document{}, model.Conflict(fmt.Sprintf("a file already exists at %q", newRel), newRel)
	}

	if err := moveFile(oldAbs, newAbs); err != nil {
		return model.Document{}, fmt.Errorf("move pdf file: %w", err)
	}
	if err := im.store.RelocateDocument(doc.RelativePath, newRel); err != nil {
		// Undo the filesystem move so disk and catalog stay in step.
		if rerr := moveFile(newAbs, oldAbs); rerr != nil {
			logger.Error(ctx, "relocate rollback failed", "document", doc.RelativePath, "error", rerr)
		}
		return model.Document{}, err
	}

	logger.Info(ctx, "document relocated", "from", doc.RelativePath, "to", newRel)
	return im.store.GetDocument(newRel)
}

// CreateFolder creates a directory under the pdf root.
func (im *Importer) CreateFolder(ctx context.Context, rel string) error {
	dir, err := normalizeRel(rel)
	if err != nil {
		return err
	}
	if dir == "" {
		return model.Validation("folder path is required")
	}
	if _, err := os.Stat(underRoot(im.pdfRoot, dir)); err == nil {
		return model.Conflict(fmt.Sprintf("folder %q already exists", dir), dir)
	}
	return os.MkdirAll(underRoot(im.pdfRoot, dir), 0o755)
}

// RenameFolder renames a directory under the pdf root and rewrites the
// relative paths of every document inside it.
func (im *Importer) RenameFolder(ctx context.Context, rel, newName string) (int, error) {
	dir, err := normalizeRel(rel)
	if err != nil {
		return 0, err
	}
	if dir == "" {
		return 0, model.Validation("folder path is required")
	}
	if newName == "" || newName != path.Base(newName) || strings.ContainsAny(newName, "/\\") {
		return 0, model.Validation("invalid folder name %q", newName)
	}
	newRel := newName
	if parent := path.Dir(dir); parent != "." {
		newRel = parent + "/" + newName
	}

	oldAbs := underRoot(im.pdfRoot, dir)
	newAbs := underRoot(im.pdfRoot, newRel)
	if info, err := os.Stat(oldAbs); err != nil || !info.IsDir() {
		return 0, model.ErrNotFound
	}
	if _, err := os.Stat(newAbs); err == nil {
		return 0, model.Conflict(fmt.Sprintf("folder %q already exists", newRel), newRel)
	}

	if err := os.Rename(oldAbs, newAbs); err != nil {
		return 0, fmt.Errorf("rename folder: %w", err)
	}
	moved, err := im.store.RelocateFolder(dir, newRel)
	if err != nil {
		if rerr := os.Rename(newAbs, oldAbs); rerr != nil {
			logger.Error(ctx, "folder rollback failed", "folder", dir, "error", rerr)
		}
		return 0, err
	}
	logger.Info(ctx, "folder renamed", "from", dir, "to", newRel, "documents", moved)
	return moved, nil
}

// DeleteFolder removes a directory under the pdf root together with every
// contained document's catalog rows.
func (im *Importer) DeleteFolder(ctx context.Context, rel string) (int, error) {
	dir, err := normalizeRel(rel)
	if err != nil {
		return 0, err
	}
	if dir == "" {
		return 0, model.Validation("refusing to delete the pdf root")
	}
	abs := underRoot(im.pdfRoot, dir)
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return 0, model.ErrNotFound
	}

	docs, err := im.store.ListDocuments()
	if err != nil {
		return 0, err
	}
	var contained []string
	for _, doc := range docs {
		if strings.HasPrefix(doc.RelativePath, dir+"/") {
			if im.activeJobFor(doc.RelativePath) {
				return 0, model.Conflict(
					fmt.Sprintf("an import job for %q is still in progress", doc.RelativePath))
			}
			contained = append(contained, doc.RelativePath)
		}
	}
	sort.Strings(contained)

	deleted := 0
	for _, relPath := range contained {
		if _, err := im.store.DeleteDocument(relPath); err != nil && err != model.ErrNotFound {
			return deleted, err
		}
		deleted++
	}
	if err := os.RemoveAll(abs); err != nil {
		return deleted, fmt.Errorf("remove folder: %w", err)
	}
	logger.Info(ctx, "folder deleted", "folder", dir, "documents", deleted)
	return deleted, nil
}
