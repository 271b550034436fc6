package errprocess

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"hls_transcode_service/pkg/logger"
)

// 錯誤分類，呼叫端用 errors.Is 判斷
var (
	// ErrInvalidInput 請求格式錯誤，不重試
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound 找不到 job
	ErrNotFound = errors.New("not found")
	// ErrInvalidState job 目前狀態不允許此操作
	ErrInvalidState = errors.New("invalid state")
	// ErrEncodeFailed 編碼程序失敗或沒有產出
	ErrEncodeFailed = errors.New("encode failed")
	// ErrStorageUnavailable 物件儲存暫時無法使用
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrAccessDenied 物件儲存權限不足，不重試
	ErrAccessDenied = errors.New("access denied")
	// ErrWorkspace 本地暫存目錄錯誤
	ErrWorkspace = errors.New("workspace error")
	// ErrTimeout 單次執行超過時限
	ErrTimeout = errors.New("timeout")
)

// EncodeError carries the encoder exit code and the tail of its stderr.
type EncodeError struct {
	ExitCode      int
	StderrExcerpt string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: exit code %d: %s", ErrEncodeFailed, e.ExitCode, e.StderrExcerpt)
}

// Is lets errors.Is(err, ErrEncodeFailed) match an *EncodeError.
func (e *EncodeError) Is(target error) bool {
	return target == ErrEncodeFailed
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Setf 記錄錯誤並包上分類，例如 Setf(ErrNotFound, "jobID[%s] 找不到", id)
func Setf(kind error, format string, args ...interface{}) error {
	err := fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
	logger.Log.Error(err.Error())
	return err
}

// Wrap 只包分類不記錄
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// IsRetryable AccessDenied / InvalidInput 以外的錯誤都交給重試策略
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAccessDenied) && !errors.Is(err, ErrInvalidInput)
}

// Truncate 截斷過長的錯誤訊息，避免塞爆資料庫欄位
// 結果一定是合法 UTF-8 且不含 NUL，postgres text 欄位才收得下
func Truncate(msg string, max int) string {
	msg = strings.ReplaceAll(strings.ToValidUTF8(msg, ""), "\x00", "")
	if max <= 0 || len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
