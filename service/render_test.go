package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuyicheng33/IPC-QUERY/config"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pkg/metrics"
)

func newTestRenderer(t *testing.T, sem int, timeout time.Duration) *Renderer {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(
		config.RenderConfig{Semaphore: sem, CacheSize: 16, CacheTTLSec: 60, MaxScale: 4},
		config.PDFConfig{RootDir: root},
		metrics.New(),
	)
	r.timeout = timeout
	return r
}

func TestRenderPageValidation(t *testing.T) {
	r := newTestRenderer(t, 1, time.Second)
	ctx := context.Background()

	if _, err := r.RenderPage(ctx, "../a.pdf", 1, 1); !model.IsValidation(err) {
		t.Errorf("dotdot err = %v, want validation error", err)
	}
	if _, err := r.RenderPage(ctx, "a.pdf", 0, 1); !model.IsValidation(err) {
		t.Errorf("page 0 err = %v, want validation error", err)
	}
	if _, err := r.RenderPage(ctx, "a.pdf", 1, -1); !model.IsValidation(err) {
		t.Errorf("negative scale err = %v, want validation error", err)
	}
	if _, err := r.RenderPage(ctx, "missing.pdf", 1, 1); err != model.ErrNotFound {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
}

func TestRenderPageCachesAndClampsScale(t *testing.T) {
	r := newTestRenderer(t, 1, time.Second)
	var calls atomic.Int32
	r.rasterize = func(absPath string, pageNum int, scale float64) ([]byte, error) {
		calls.Add(1)
		if scale > 4 {
			t.Errorf("scale %v not clamped", scale)
		}
		return []byte(fmt.Sprintf("png p%d s%.3f", pageNum, scale)), nil
	}

	// Oversized scale clamps to the max and therefore shares its cache slot.
	first, err := r.RenderPage(context.Background(), "a.pdf", 1, 99)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	second, err := r.RenderPage(context.Background(), "a.pdf", 1, 4)
	if err != nil {
		t.Fatalf("RenderPage cached: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("cache miss on identical render: %q vs %q", first, second)
	}
	if calls.Load() != 1 {
		t.Errorf("rasterize ran %d times, want 1", calls.Load())
	}

	// A different page renders fresh.
	if _, err := r.RenderPage(context.Background(), "a.pdf", 2, 4); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("rasterize ran %d times, want 2", calls.Load())
	}
}

func TestRenderPageBusy(t *testing.T) {
	r := newTestRenderer(t, 1, 20*time.Millisecond)
	r.rasterize = func(absPath string, pageNum int, scale float64) ([]byte, error) {
		return []byte("png"), nil
	}

	// Occupy the only slot so the next caller times out.
	r.sem <- struct{}{}
	_, err := r.RenderPage(context.Background(), "a.pdf", 1, 1)
	if err != model.ErrBusy {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	<-r.sem

	if _, err := r.RenderPage(context.Background(), "a.pdf", 1, 1); err != nil {
		t.Errorf("render after release: %v", err)
	}
}

func TestNormalizeRel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"fleet", "fleet", false},
		{"fleet/sub", "fleet/sub", false},
		{"/fleet/", "fleet", false},
		{"fleet\\sub", "fleet/sub", false},
		{"..", "", true},
		{"fleet/../escape", "", true},
		{"fleet/./sub", "", true},
	}
	for _, tt := range tests {
		got, err := normalizeRel(tt.in)
		if tt.wantErr {
			if !model.IsValidation(err) {
				t.Errorf("normalizeRel(%q) err = %v, want validation error", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("normalizeRel(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
