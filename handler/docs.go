package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/service"
	"github.com/xuyicheng33/IPC-QUERY/store"
)

// DocsHandler serves the document catalog and the document/folder mutations.
type DocsHandler struct {
	store    *store.Store
	importer *service.Importer
}

func NewDocsHandler(st *store.Store, im *service.Importer) *DocsHandler {
	return &DocsHandler{store: st, importer: im}
}

// List handles GET /api/docs
func (h *DocsHandler) List(c *gin.Context) {
	docs, err := h.store.ListDocuments()
	if err != nil {
		respondErr(c, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": len(docs)})
}

// Tree handles GET /api/docs/tree
func (h *DocsHandler) Tree(c *gin.Context) {
	tree, err := h.store.DocTree()
	if err != nil {
		respondErr(c, err)
		return
	}
	if tree == nil {
		tree = []model.DocTreeNode{}
	}
	c.JSON(http.StatusOK, gin.H{"tree": tree})
}

type docTargetRequest struct {
	Path string `json:"path" binding:"required"`
}

// Delete handles DELETE /api/docs
func (h *DocsHandler) Delete(c *gin.Context) {
	var req docTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, model.Validation("path is required"))
		return
	}
	doc, counts, err := h.importer.DeleteDocument(c.Request.Context(), req.Path)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": doc.RelativePath, "counts": counts})
}

type renameRequest struct {
	Path    string `json:"path" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

// Rename handles POST /api/docs/rename
func (h *DocsHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, model.Validation("path and new_name are required"))
		return
	}
	doc, err := h.importer.RenameDocument(c.Request.Context(), req.Path, req.NewName)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type moveRequest struct {
	Path      string `json:"path" binding:"required"`
	TargetDir string `json:"target_dir"`
}

// Move handles POST /api/docs/move
func (h *DocsHandler) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, model.Validation("path is required"))
		return
	}
	doc, err := h.importer.MoveDocument(c.Request.Context(), req.Path, req.TargetDir)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type folderRequest struct {
	Path string `json:"path" binding:"required"`
}

// CreateFolder handles POST /api/folders
func (h *DocsHandler) CreateFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, model.Validation("path is required"))
		return
	}
	if err := h.importer.CreateFolder(c.Request.Context(), req.Path); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": req.Path})
}

type folderRenameRequest struct {
	Path    string `json:"path" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

// RenameFolder handles POST /api/folders/rename
func (h *DocsHandler) RenameFolder(c *gin.Context) {
	var req folderRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, model.Validation("path and new_name are required"))
		return
	}
	moved, err := h.importer.RenameFolder(c.Request.Context(), req.Path, req.NewName)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents_moved": moved})
}

// DeleteFolder handles DELETE /api/folders
func (h *DocsHandler) DeleteFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, model.Validation("path is required"))
		return
	}
	deleted, err := h.importer.DeleteFolder(c.Request.Context(), req.Path)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents_deleted": deleted})
}
