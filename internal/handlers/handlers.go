package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/repository"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/usecase"
)

// MaxUploadSize is the largest accepted image, in bytes.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers.
const multipartOverhead = 1 << 20

const requestIDHeader = "X-Request-ID"

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.AnalysisUseCase, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	h := &handler{uc: uc, logger: logger.Named("http")}

	router.Use(requestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1/analysis")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}
	api.POST("/upload", h.upload)
	api.GET("/history", h.history)
	api.GET("/:id", h.get)
	api.POST("/:id/confirm", h.confirm)
	api.POST("/:id/retry-ocr", h.retryOCR)
}

type handler struct {
	uc     *usecase.AnalysisUseCase
	logger *zap.Logger
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (h *handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, analysis.CodePayloadTooLarge, "image exceeds 10 MiB")
			return
		}
		writeError(c, http.StatusBadRequest, analysis.CodeBadRequest, "file is required")
		return
	}
	if file.Size > MaxUploadSize {
		writeError(c, http.StatusRequestEntityTooLarge, analysis.CodePayloadTooLarge, "image exceeds 10 MiB")
		return
	}

	data, err := readPart(file)
	if err != nil {
		writeError(c, http.StatusBadRequest, analysis.CodeBadRequest, "unable to read image")
		return
	}

	contentType := imageContentType(file.Header.Get("Content-Type"), data)
	if contentType == "" {
		writeError(c, http.StatusUnsupportedMediaType, analysis.CodeUnsupportedMediaType, "only image uploads are supported")
		return
	}

	record, err := h.uc.Upload(c.Request.Context(), usecase.Upload{
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis.UploadResponse{ID: record.ID, Status: record.Status})
}

func readPart(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// imageContentType returns the image media type for an upload, or "" when the
// upload is not an image. Generic declared types fall back to sniffing.
func imageContentType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if declared != "" && declared != "application/octet-stream" {
		return ""
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}

func (h *handler) get(c *gin.Context) {
	record, err := h.uc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusBody(record))
}

func (h *handler) confirm(c *gin.Context) {
	var req analysis.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, analysis.CodeBadRequest, "invalid request body")
		return
	}
	record, err := h.uc.Confirm(c.Request.Context(), c.Param("id"), req.ConfirmedText, req.Preference)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusBody(record))
}

func (h *handler) retryOCR(c *gin.Context) {
	record, err := h.uc.RetryOCR(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusBody(record))
}

func (h *handler) history(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		writeError(c, http.StatusBadRequest, analysis.CodeBadRequest, "page must be a number")
		return
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		writeError(c, http.StatusBadRequest, analysis.CodeBadRequest, "limit must be a number")
		return
	}

	result, err := h.uc.History(c.Request.Context(), page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotFound):
		writeError(c, http.StatusNotFound, analysis.CodeNotFound, "analysis not found")
	case errors.Is(err, usecase.ErrOCRNotReady), errors.Is(err, usecase.ErrAlreadyConfirmed):
		writeError(c, http.StatusConflict, analysis.CodeConflict, err.Error())
	case errors.Is(err, usecase.ErrEmptyText),
		errors.Is(err, usecase.ErrInvalidPreference),
		errors.Is(err, usecase.ErrEmptyImage):
		writeError(c, http.StatusBadRequest, analysis.CodeBadRequest, err.Error())
	default:
		logging.WithOperation(h.logger, logging.OperationOf(err), c.GetString("request_id")).
			Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, analysis.CodeInternal, "internal error")
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, analysis.ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: c.GetString("request_id"),
	})
}

func statusBody(record *repository.AnalysisRecord) analysis.StatusResponse {
	return analysis.StatusResponse{
		ID:            record.ID,
		Status:        record.Status,
		OCRStatus:     record.OCRStatus,
		LLMStatus:     record.LLMStatus,
		OCRText:       record.OCRText,
		ConfirmedText: record.ConfirmedText,
		Preference:    record.Preference,
		ErrorMessage:  record.ErrorMessage,
		CreatedAt:     record.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     record.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
