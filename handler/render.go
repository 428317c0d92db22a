package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/service"
)

// RenderHandler serves rasterized catalog pages.
type RenderHandler struct {
	renderer *service.Renderer
}

func NewRenderHandler(r *service.Renderer) *RenderHandler {
	return &RenderHandler{renderer: r}
}

// Render handles GET /render?path=...&page=1&scale=1.5
func (h *RenderHandler) Render(c *gin.Context) {
	relPath := c.Query("path")
	if relPath == "" {
		respondErr(c, model.Validation("query parameter path is required"))
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		respondErr(c, model.Validation("invalid page %q", c.Query("page")))
		return
	}
	scale, err := strconv.ParseFloat(c.DefaultQuery("scale", "1"), 64)
	if err != nil {
		respondErr(c, model.Validation("invalid scale %q", c.Query("scale")))
		return
	}

	png, err := h.renderer.RenderPage(c.Request.Context(), relPath, page, scale)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
