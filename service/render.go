package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/xuyicheng33/IPC-QUERY/config"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pkg/cache"
	"github.com/xuyicheng33/IPC-QUERY/pkg/logger"
	"github.com/xuyicheng33/IPC-QUERY/pkg/metrics"
)

const baseDPI = 72

// rasterizeFunc turns one page of one PDF into PNG bytes.
type rasterizeFunc func(absPath string, pageNum int, scale float64) ([]byte, error)

// Renderer rasterizes catalog pages to PNG. Concurrency is capped by a
// semaphore so a burst of page loads cannot starve the rest of the process;
// waiters that exceed the timeout get a retryable busy error instead of
// queueing unboundedly.
type Renderer struct {
	pdfRoot  string
	maxScale float64
	timeout  time.Duration
	sem      chan struct{}
	cache    *cache.Cache[[]byte]
	metrics  *metrics.Metrics

	rasterize rasterizeFunc
}

func NewRenderer(cfg config.RenderConfig, pdfCfg config.PDFConfig, m *metrics.Metrics) *Renderer {
	return &Renderer{
		pdfRoot:  pdfCfg.RootDir,
		maxScale: cfg.MaxScale,
		timeout:  time.Duration(cfg.TimeoutSec * float64(time.Second)),
		sem:      make(chan struct{}, cfg.Semaphore),
		cache: cache.New[[]byte](cfg.CacheSize, time.Duration(cfg.CacheTTLSec)*time.Second,
			cache.WithCounters[[]byte](
				m.CacheHits.WithLabelValues("render"),
				m.CacheMisses.WithLabelValues("render"),
			)),
		metrics:   m,
		rasterize: fitzRasterize,
	}
}

// RenderPage renders one page of the document at relPath at the given scale
// (1.0 = 72 dpi). Results are cached keyed on the file's mtime, so a
// re-uploaded document invalidates its own entries.
func (r *Renderer) RenderPage(ctx context.Context, relPath string, pageNum int, scale float64) ([]byte, error) {
	rel, err := normalizePDFRel(relPath)
	if err != nil {
		return nil, err
	}
	if pageNum < 1 {
		return nil, model.Validation("page must be >= 1")
	}
	if scale <= 0 {
		return nil, model.Validation("scale must be positive")
	}
	if scale > r.maxScale {
		scale = r.maxScale
	}

	abs := underRoot(r.pdfRoot, rel)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, model.ErrNotFound
	}

	key := fmt.Sprintf("%s|%d|%d|%.3f", rel, info.ModTime().UnixNano(), pageNum, scale)
	if png, ok := r.cache.Get(key); ok {
		return png, nil
	}

	select {
	case r.sem <- struct{}{}:
	case <-time.After(r.timeout):
		r.metrics.RenderBusy.Inc()
		return nil, model.ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	// Re-check: another waiter may have rendered the same page meanwhile.
	if png, ok := r.cache.Get(key); ok {
		return png, nil
	}

	png, err := r.rasterize(abs, pageNum, scale)
	if err != nil {
		logger.Warn(ctx, "render failed", "document", rel, "page", pageNum, "error", err)
		return nil, err
	}
	r.cache.Set(key, png)
	return png, nil
}

func fitzRasterize(absPath string, pageNum int, scale float64) ([]byte, error) {
	doc, err := fitz.New(absPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if pageNum > doc.NumPage() {
		return nil, model.Validation("page %d is beyond the document's %d pages", pageNum, doc.NumPage())
	}
	png, err := doc.ImagePNG(pageNum-1, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", pageNum, err)
	}
	return png, nil
}
