package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xuyicheng33/IPC-QUERY/config"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pkg/cache"
	"github.com/xuyicheng33/IPC-QUERY/pkg/metrics"
	"github.com/xuyicheng33/IPC-QUERY/store"
)

// SearchHandler serves part search and part detail from the read-only store,
// with a short-TTL result cache in front of the ranked queries.
type SearchHandler struct {
	store *store.Store
	cfg   config.SearchConfig
	cache *cache.Cache[[]byte]
}

func NewSearchHandler(st *store.Store, cfg config.SearchConfig, m *metrics.Metrics) *SearchHandler {
	return &SearchHandler{
		store: st,
		cfg:   cfg,
		cache: cache.New[[]byte](cfg.CacheSize, time.Duration(cfg.CacheTTLSec)*time.Second,
			cache.WithCounters[[]byte](
				m.CacheHits.WithLabelValues("search"),
				m.CacheMisses.WithLabelValues("search"),
			)),
	}
}

type searchResponse struct {
	Query    string               `json:"query"`
	Mode     string               `json:"mode"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Results  []model.SearchResult `json:"results"`
}

// Search handles GET /api/search?q=...&mode=pn|term|all&page=&page_size=
func (h *SearchHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		respondErr(c, model.Validation("query parameter q is required"))
		return
	}
	mode := c.DefaultQuery("mode", "all")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(h.cfg.DefaultPageSize)))
	if pageSize < 1 {
		pageSize = h.cfg.DefaultPageSize
	}
	if pageSize > h.cfg.MaxPageSize {
		pageSize = h.cfg.MaxPageSize
	}
	offset := (page - 1) * pageSize

	key := fmt.Sprintf("%s|%s|%d|%d", mode, q, page, pageSize)
	if body, ok := h.cache.Get(key); ok {
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	var (
		results []model.SearchResult
		total   int
		err     error
	)
	switch mode {
	case "pn":
		results, total, err = h.store.SearchPN(q, pageSize, offset)
	case "term":
		results, total, err = h.store.SearchTerm(q, pageSize, offset)
	case "all":
		results, total, err = h.store.SearchAll(q, pageSize, offset)
	default:
		respondErr(c, model.Validation("unknown search mode %q", mode))
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}

	body, err := json.Marshal(searchResponse{
		Query: q, Mode: mode, Total: total,
		Page: page, PageSize: pageSize, Results: results,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	h.cache.Set(key, body)
	c.Data(http.StatusOK, "application/json", body)
}

// Part handles GET /api/part/:id
func (h *SearchHandler) Part(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		respondErr(c, model.Validation("invalid part id %q", c.Param("id")))
		return
	}

	detail, err := h.store.GetPartDetail(id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
