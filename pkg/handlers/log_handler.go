package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/models"
	"oee-copilot/pkg/services"

	"github.com/gin-gonic/gin"
)

// アップロードの上限
const maxUploadBytes = 10 << 20

// Importer はステータスログファイルを取り込みます。
type Importer interface {
	Import(ctx context.Context, fileName string, r io.Reader) (models.ImportResult, error)
}

// StatsProvider はステータスログの件数統計を返します。
type StatsProvider interface {
	LogStats(ctx context.Context) (models.LogStats, error)
}

// LogHandler 設備ステータスログのインポートと統計
type LogHandler struct {
	importer Importer
	stats    StatsProvider
	log      *logger.Logger
}

// NewLogHandler は新しいLogHandlerを生成します。
func NewLogHandler(importer Importer, stats StatsProvider, log *logger.Logger) *LogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LogHandler{importer: importer, stats: stats, log: log}
}

// Import は multipart の file フィールドで受け取った .csv / .xlsx で全件を置き換えます。
func (h *LogHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	result, err := h.importer.Import(c.Request.Context(), header.Filename, file)
	switch {
	case errors.Is(err, services.ErrUnsupportedFormat),
		errors.Is(err, services.ErrMissingColumns),
		errors.Is(err, services.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Errorw("import failed", "file", header.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import status logs"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats は総行数と設備ごとの行数を返します。
func (h *LogHandler) Stats(c *gin.Context) {
	stats, err := h.stats.LogStats(c.Request.Context())
	if err != nil {
		h.log.Errorw("failed to count status logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count status logs"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
