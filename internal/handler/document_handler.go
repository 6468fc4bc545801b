package handler

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/extractor"
	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/pkg/errcode"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
	"github.com/xxxsen/docsassist/internal/pkg/response"
	"github.com/xxxsen/docsassist/internal/service"
)

type DocumentHandler struct {
	ingest        *service.IngestService
	documents     *service.DocumentService
	maxUploadSize int64
}

func NewDocumentHandler(ingest *service.IngestService, documents *service.DocumentService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, documents: documents, maxUploadSize: maxUploadSize}
}

type uploadRequest struct {
	SourceType  string `json:"source_type" form:"source_type"`
	Title       string `json:"title" form:"title"`
	URL         string `json:"url" form:"url"`
	TextContent string `json:"text_content" form:"text_content"`
}

// Upload accepts either a JSON body or a multipart form. Processing failures
// are reported on the returned document, not as an error envelope.
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req uploadRequest
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		err = c.ShouldBind(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	in := &service.IngestRequest{
		SourceType:  model.SourceType(strings.TrimSpace(req.SourceType)),
		Title:       req.Title,
		URL:         req.URL,
		TextContent: req.TextContent,
	}
	if in.SourceType == model.SourceTypeFile {
		name, data, err := h.readUpload(c)
		if err != nil {
			handleError(c, err)
			return
		}
		in.FileName = name
		in.FileData = data
	}
	doc, err := h.ingest.Ingest(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) readUpload(c *gin.Context) (string, []byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("file is required: %w", appErr.ErrInvalid)
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		return "", nil, fmt.Errorf("file exceeds %s: %w", formatUploadLimit(h.maxUploadSize), appErr.ErrFileTooBig)
	}
	opened, err := file.Open()
	if err != nil {
		return "", nil, err
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		return "", nil, err
	}
	if !extractor.SupportedExt(file.Filename) {
		// still ingested, the document records the extraction failure
		logutil.GetLogger(c.Request.Context()).Warn("upload has unsupported extension",
			zap.String("file_name", file.Filename), zap.String("ext", extractor.FileExt(file.Filename)))
	}
	return file.Filename, data, nil
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Chunks(c *gin.Context) {
	chunks, err := h.documents.Chunks(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chunks)
}

func (h *DocumentHandler) File(c *gin.Context) {
	rc, doc, err := h.documents.OpenFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer rc.Close()
	contentType := mime.TypeByExtension(extractor.FileExt(doc.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c)
}
