package token

import (
	"sync"

	"hls_transcode_service/pkg/config"
)

var (
	defaultSigner = NewSigner("", "", 0)
	signerMu      sync.RWMutex
)

// 測試時可以覆蓋
var (
	GenerateJWTFunc = func(subject string, role RoleType) (string, error) {
		return Default().GenerateJWT(subject, role)
	}
	ParseJWTFunc = func(t string) (*Claims, error) {
		return Default().ParseJWT(t)
	}
)

// Configure main 啟動時由設定檔建立預設 signer
func Configure(c config.JWTConfig) {
	signerMu.Lock()
	defer signerMu.Unlock()
	defaultSigner = NewSigner(c.Secret, c.Issuer, c.Expiration)
}

// Default 目前的預設 signer
func Default() *Signer {
	signerMu.RLock()
	defer signerMu.RUnlock()
	return defaultSigner
}

// GenerateJWTWrapper 使用預設 signer 簽發
func GenerateJWTWrapper(subject string, role RoleType) (string, error) {
	return GenerateJWTFunc(subject, role)
}

// ParseJWTWrapper 使用預設 signer 驗證
func ParseJWTWrapper(t string) (*Claims, error) {
	return ParseJWTFunc(t)
}
