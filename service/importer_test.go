package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuyicheng33/IPC-QUERY/config"
	"github.com/xuyicheng33/IPC-QUERY/extract"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pkg/metrics"
	"github.com/xuyicheng33/IPC-QUERY/store"
)

// fakePDF is just enough of a page source to produce one part row.
type fakePDF struct{}

func (fakePDF) PageCount() int { return 1 }

func (fakePDF) Words(pageNum int, clip extract.Rect) ([]extract.Word, error) {
	word := func(col extract.Column, text string) extract.Word {
		x0, x1, _ := extract.ColumnSpan(col)
		cx := (x0 + x1) / 2
		return extract.Word{X0: cx - 10, Y0: extract.Pt(5), X1: cx + 10, Y1: extract.Pt(5) + 8, Text: text}
	}
	return []extract.Word{
		word(extract.ColFigItem, "1"),
		word(extract.ColPartNumber, "AB1-100"),
		word(extract.ColNomenclature, "VALVE ASSY"),
	}, nil
}

func (fakePDF) Text(pageNum int, clip extract.Rect) (string, error) {
	switch clip {
	case extract.MarkRect:
		return "FIG. 1", nil
	case extract.MetaRect:
		return "25-21-44\nFIG. 1\nPAGE 1", nil
	default:
		return "FIG. ITEM PART NUMBER NOMENCLATURE", nil
	}
}

func (fakePDF) PlainText(pageNum int) (string, error) { return "AB1-100", nil }

func fakeOpen(path string) (extract.PageSource, func() error, error) {
	return fakePDF{}, func() error { return nil }, nil
}

func newTestImporter(t *testing.T, queueSize int) (*Importer, *store.Store) {
	t.Helper()
	base := t.TempDir()
	st, err := store.Open(filepath.Join(base, "db", "catalog.sqlite"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pdfRoot := filepath.Join(base, "pdf")
	if err := os.MkdirAll(pdfRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	im := NewImporter(
		config.ImporterConfig{MaxFileSizeMB: 1, QueueSize: queueSize, MaxJobsRetained: 100},
		config.PDFConfig{RootDir: pdfRoot, UploadDir: filepath.Join(base, "upload")},
		st, metrics.New(),
	)
	im.open = fakeOpen
	return im, st
}

var validUpload = []byte("%PDF-1.4 fake body")

func TestSubmitUploadValidation(t *testing.T) {
	im, _ := newTestImporter(t, 4)
	ctx := context.Background()

	tests := []struct {
		name        string
		filename    string
		data        []byte
		contentType string
		targetDir   string
	}{
		{"empty name", "", validUpload, "application/pdf", ""},
		{"not a pdf name", "notes.txt", validUpload, "application/pdf", ""},
		{"path in name", "../x.pdf", validUpload, "application/pdf", ""},
		{"empty body", "a.pdf", nil, "application/pdf", ""},
		{"too large", "a.pdf", append(validUpload, make([]byte, 2<<20)...), "application/pdf", ""},
		{"bad content type", "a.pdf", validUpload, "text/html", ""},
		{"no magic", "a.pdf", []byte("GIF89a not a pdf"), "application/pdf", ""},
		{"dotdot target", "a.pdf", validUpload, "application/pdf", "../outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.SubmitUpload(ctx, tt.filename, tt.data, tt.contentType, tt.targetDir)
			if !model.IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}

	// Nothing may linger in the upload dir after rejected submissions.
	entries, _ := os.ReadDir(im.uploadDir)
	if len(entries) != 0 {
		t.Errorf("upload dir not empty after rejections: %v", entries)
	}
}

func TestSubmitUploadQueueFullLeavesNoStagedFile(t *testing.T) {
	im, _ := newTestImporter(t, 1) // worker not started, one slot
	ctx := context.Background()

	if _, err := im.SubmitUpload(ctx, "first.pdf", validUpload, "application/pdf", ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := im.SubmitUpload(ctx, "second.pdf", validUpload, "application/pdf", "")
	if err != model.ErrQueueFull {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	entries, err := os.ReadDir(im.uploadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("upload dir has %d entries, want only the first staging file", len(entries))
	}
	if im.activeJobFor("second.pdf") {
		t.Error("rejected job still tracked")
	}
}

func TestImportPromotesAndIngests(t *testing.T) {
	im, st := newTestImporter(t, 4)
	im.Start()
	defer im.Stop(5 * time.Second)

	job, err := im.SubmitUpload(context.Background(), "valve.pdf", validUpload, "application/pdf", "fleet")
	if err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}

	waitTerminal(t, func() (string, error) {
		j, err := im.Job(job.ID)
		return j.Status, err
	})

	j, err := im.Job(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != model.JobSuccess {
		t.Fatalf("job = %+v", j)
	}
	if j.Summary == nil || j.Summary.DocsIngested != 1 {
		t.Errorf("summary = %+v", j.Summary)
	}

	promoted := filepath.Join(im.pdfRoot, "fleet", "valve.pdf")
	if _, err := os.Stat(promoted); err != nil {
		t.Errorf("promoted file missing: %v", err)
	}
	if _, err := st.GetDocument("fleet/valve.pdf"); err != nil {
		t.Errorf("document not in catalog: %v", err)
	}
	states, _ := st.ListScanStates("fleet")
	if len(states) != 1 {
		t.Errorf("scan state not recorded: %+v", states)
	}
}

func TestImportRollbackRestoresPreviousFile(t *testing.T) {
	im, st := newTestImporter(t, 4)
	im.open = func(path string) (extract.PageSource, func() error, error) {
		return nil, nil, errors.New("corrupt pdf")
	}

	old := []byte("%PDF-1.4 previous revision")
	dest := filepath.Join(im.pdfRoot, "valve.pdf")
	if err := os.WriteFile(dest, old, 0o644); err != nil {
		t.Fatal(err)
	}

	im.Start()
	defer im.Stop(5 * time.Second)

	job, err := im.SubmitUpload(context.Background(), "valve.pdf", validUpload, "application/pdf", "")
	if err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}
	waitTerminal(t, func() (string, error) {
		j, err := im.Job(job.ID)
		return j.Status, err
	})

	j, _ := im.Job(job.ID)
	if j.Status != model.JobFailed || j.Error == "" {
		t.Fatalf("job = %+v, want failed with error", j)
	}

	// The previous revision is back in place and no backup litter remains.
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != string(old) {
		t.Errorf("dest = %q, want previous revision restored", got)
	}
	entries, _ := os.ReadDir(im.uploadDir)
	for _, e := range entries {
		t.Errorf("upload dir litter: %s", e.Name())
	}
	rootEntries, _ := os.ReadDir(im.pdfRoot)
	for _, e := range rootEntries {
		if e.Name() != "valve.pdf" {
			t.Errorf("pdf root litter: %s", e.Name())
		}
	}
	if docs, _ := st.ListDocuments(); len(docs) != 0 {
		t.Errorf("failed import left catalog rows: %+v", docs)
	}
}

func waitTerminal(t *testing.T, status func() (string, error)) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st, err := status()
		if err != nil {
			t.Fatalf("job status: %v", err)
		}
		if model.Terminal(st) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
}

func TestDeleteDocumentRemovesFile(t *testing.T) {
	im, st := newTestImporter(t, 4)
	im.Start()
	defer im.Stop(5 * time.Second)

	job, err := im.SubmitUpload(context.Background(), "a.pdf", validUpload, "application/pdf", "")
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, func() (string, error) {
		j, err := im.Job(job.ID)
		return j.Status, err
	})

	doc, counts, err := im.DeleteDocument(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if doc.RelativePath != "a.pdf" || counts.Parts == 0 {
		t.Errorf("doc = %+v, counts = %+v", doc, counts)
	}
	if _, err := os.Stat(filepath.Join(im.pdfRoot, "a.pdf")); !os.IsNotExist(err) {
		t.Errorf("pdf file still on disk: %v", err)
	}
	if _, err := st.GetDocument("a.pdf"); err != model.ErrNotFound {
		t.Errorf("catalog row survived: %v", err)
	}
}

func TestRenameAndMoveDocument(t *testing.T) {
	im, st := newTestImporter(t, 4)
	im.Start()
	defer im.Stop(5 * time.Second)

	job, err := im.SubmitUpload(context.Background(), "a.pdf", validUpload, "application/pdf", "")
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, func() (string, error) {
		j, err := im.Job(job.ID)
		return j.Status, err
	})

	doc, err := im.RenameDocument(context.Background(), "a.pdf", "renamed.pdf")
	if err != nil {
		t.Fatalf("RenameDocument: %v", err)
	}
	if doc.RelativePath != "renamed.pdf" || doc.PDFName != "renamed.pdf" {
		t.Errorf("renamed doc = %+v", doc)
	}
	if _, err := os.Stat(filepath.Join(im.pdfRoot, "renamed.pdf")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}

	if err := im.CreateFolder(context.Background(), "archive"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	doc, err = im.MoveDocument(context.Background(), "renamed.pdf", "archive")
	if err != nil {
		t.Fatalf("MoveDocument: %v", err)
	}
	if doc.RelativePath != "archive/renamed.pdf" {
		t.Errorf("moved doc = %+v", doc)
	}
	if _, err := st.GetDocument("archive/renamed.pdf"); err != nil {
		t.Errorf("catalog row not moved: %v", err)
	}

	// Moving into a folder that does not exist is rejected up front.
	if _, err := im.MoveDocument(context.Background(), "archive/renamed.pdf", "nope"); !model.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestRenameFolderFollowsDocuments(t *testing.T) {
	im, st := newTestImporter(t, 4)
	im.Start()
	defer im.Stop(5 * time.Second)

	job, err := im.SubmitUpload(context.Background(), "a.pdf", validUpload, "application/pdf", "old")
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, func() (string, error) {
		j, err := im.Job(job.ID)
		return j.Status, err
	})

	moved, err := im.RenameFolder(context.Background(), "old", "new")
	if err != nil {
		t.Fatalf("RenameFolder: %v", err)
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1", moved)
	}
	if _, err := st.GetDocument("new/a.pdf"); err != nil {
		t.Errorf("document did not follow the folder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(im.pdfRoot, "new", "a.pdf")); err != nil {
		t.Errorf("file did not move: %v", err)
	}

	deleted, err := im.DeleteFolder(context.Background(), "new")
	if err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := st.GetDocument("new/a.pdf"); err != model.ErrNotFound {
		t.Errorf("catalog row survived folder delete: %v", err)
	}
}
