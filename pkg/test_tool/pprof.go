package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"hls_transcode_service/pkg/config"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// PprofAddr 只在本機開放
const PprofAddr = "127.0.0.1:6060"

// StartPprof production 環境不啟動 pprof
func StartPprof() {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", PprofAddr))
		if err := http.ListenAndServe(PprofAddr, nil); err != nil {
			logger.Log.Warn("pprof server failed", zap.Error(err))
		}
	}()
}

// pprof 端點：
// 	•	/debug/pprof/ → 顯示所有可用的分析數據
// 	•	/debug/pprof/goroutine → 顯示所有 Goroutines
// 	•	/debug/pprof/heap → 顯示記憶體分配
// 	•	/debug/pprof/profile → 執行 30 秒 CPU 分析
//
// 轉碼時 CPU 大多花在 ffmpeg 子行程，go tool pprof 主要用來看 worker goroutine 是否卡住：
// go tool pprof http://127.0.0.1:6060/debug/pprof/goroutine
