package handler

import (
	"net/http"
	"sync"

	config "oee-copilot/configs"
	"oee-copilot/pkg/app"
	"oee-copilot/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	engine  http.Handler
	once    sync.Once
	initErr error
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
// .envは使わず、ホスティング側の環境変数から設定を読み込みます。
func setupApp() (http.Handler, error) {
	once.Do(func() {
		cfg, err := config.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		log := logger.Get(cfg.LogLevel)
		gin.SetMode(gin.ReleaseMode)

		a, err := app.Build(cfg, log)
		if err != nil {
			initErr = err
			return
		}
		log.Infow("serverless handler initialized")
		engine = a.Router
	})
	return engine, initErr
}

// Handler はサーバーレス関数のエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	h, err := setupApp()
	if err != nil {
		logger.Get("error").Errorw("failed to initialize application", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"service initialization failed"}`))
		return
	}
	h.ServeHTTP(w, r)
}
