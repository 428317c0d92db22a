package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/service"
)

// JobsHandler serves the async import and scan pipelines.
type JobsHandler struct {
	importer *service.Importer
	scanner  *service.Scanner
}

func NewJobsHandler(im *service.Importer, sc *service.Scanner) *JobsHandler {
	return &JobsHandler{importer: im, scanner: sc}
}

// Upload handles POST /api/import (multipart form: file, optional target_dir)
func (h *JobsHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondErr(c, model.Validation("multipart field 'file' is required"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondErr(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondErr(c, err)
		return
	}

	job, err := h.importer.SubmitUpload(
		c.Request.Context(),
		fileHeader.Filename,
		data,
		fileHeader.Header.Get("Content-Type"),
		c.PostForm("target_dir"),
	)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// ImportJob handles GET /api/import/jobs/:id
func (h *JobsHandler) ImportJob(c *gin.Context) {
	job, err := h.importer.Job(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ImportJobs handles GET /api/import/jobs
func (h *JobsHandler) ImportJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.importer.Jobs()})
}

type scanRequest struct {
	Path string `json:"path"`
}

// Scan handles POST /api/scan
func (h *JobsHandler) Scan(c *gin.Context) {
	var req scanRequest
	// An empty body means "scan the whole root".
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, model.Validation("invalid scan request body"))
			return
		}
	}
	job, err := h.scanner.SubmitScan(c.Request.Context(), req.Path)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// ScanJob handles GET /api/scan/:id
func (h *JobsHandler) ScanJob(c *gin.Context) {
	job, err := h.scanner.Job(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ScanJobs handles GET /api/scan
func (h *JobsHandler) ScanJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.scanner.Jobs()})
}
