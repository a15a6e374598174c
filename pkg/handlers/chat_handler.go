package handlers

import (
	"context"
	"errors"
	"net/http"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/models"
	"oee-copilot/pkg/services"

	"github.com/gin-gonic/gin"
)

// Copilot はチャットパイプラインです。
type Copilot interface {
	Respond(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	Summary(ctx context.Context) (models.OEEReport, error)
}

// ChatHandler チャットと集計サマリーのハンドラ
type ChatHandler struct {
	copilot Copilot
	log     *logger.Logger
}

// NewChatHandler は新しいChatHandlerを生成します。
func NewChatHandler(copilot Copilot, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatHandler{copilot: copilot, log: log}
}

// Chat はユーザーメッセージに応答します。
// 生成APIやログ取得の失敗は定型文で200を返し、500はユーザー発話を保存できなかったときだけです。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.copilot.Respond(c.Request.Context(), req)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Errorw("chat pipeline failed", "sessionId", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Summary はダッシュボード向けの集計結果を返します。データが無ければ noData=true で200です。
func (h *ChatHandler) Summary(c *gin.Context) {
	report, err := h.copilot.Summary(c.Request.Context())
	if err != nil {
		h.log.Errorw("failed to build summary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load equipment status data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":         report.Summary,
		"ranking":         report.Ranking,
		"failures":        report.Failures,
		"daily":           report.Daily,
		"classification":  summaryClass(report),
		"worldClassOEE":   services.WorldClassOEE,
		"acceptableOEE":   services.AcceptableOEE,
		"availabilityPct": services.RoundPct(report.Summary.AvailabilityPct),
	})
}

func summaryClass(report models.OEEReport) string {
	if report.Summary.NoData {
		return ""
	}
	return services.ClassifyAvailability(report.Summary.AvailabilityPct)
}
