package handlers

import (
	"crypto/subtle"
	"net/http"
	"sync/atomic"

	"oee-copilot/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Maintenance はメンテナンスモードのフラグです。
// atomic.Boolを使用して、スレッドセーフな読み書きを保証します。
type Maintenance struct {
	enabled atomic.Bool
}

// Enabled reports whether maintenance mode is on.
func (m *Maintenance) Enabled() bool {
	return m.enabled.Load()
}

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	username    string
	password    string
	maintenance *Maintenance
	log         *logger.Logger
}

// NewAdminHandler は新しいAdminHandlerを生成します。
// パスワードが空の場合、管理操作は常に拒否されます。
func NewAdminHandler(username, password string, maintenance *Maintenance, log *logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{username: username, password: password, maintenance: maintenance, log: log}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.enabled.Store(true)
	h.log.Warnw("maintenance mode started")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.enabled.Store(false)
	h.log.Infow("maintenance mode stopped")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isMaintenanceMode": h.maintenance.Enabled()})
}

func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}
	if h.password == "" || !secureEqual(input.Username, h.username) || !secureEqual(input.Password, h.password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func HealthCheck(maintenance *Maintenance) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maintenance.Enabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "OEE Copilot"})
	}
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
