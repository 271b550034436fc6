package errprocess

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"hls_transcode_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestSetf(t *testing.T) {
	logger.SetNewNop()

	err := Setf(ErrNotFound, "jobID[%s] 找不到", "abc")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "not found: jobID[abc] 找不到", err.Error())
}

func TestEncodeErrorIs(t *testing.T) {
	var err error = &EncodeError{ExitCode: 1, StderrExcerpt: "boom"}
	wrapped := fmt.Errorf("rendition 240p: %w", err)

	assert.True(t, errors.Is(wrapped, ErrEncodeFailed))
	var encErr *EncodeError
	assert.True(t, errors.As(wrapped, &encErr))
	assert.Equal(t, 1, encErr.ExitCode)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"access denied", Wrap(ErrAccessDenied, errors.New("403")), false},
		{"invalid input", ErrInvalidInput, false},
		{"storage", Wrap(ErrStorageUnavailable, errors.New("dial tcp")), true},
		{"timeout", ErrTimeout, true},
		{"encode", &EncodeError{ExitCode: 1}, true},
		{"workspace", ErrWorkspace, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsRetryable(c.err))
		})
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	base := Wrap(ErrTimeout, errors.New("deadline"))
	assert.Equal(t, base, Wrap(ErrTimeout, base))
	assert.Nil(t, Wrap(ErrTimeout, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	msg := "encode failed: exit code 12: " + strings.Repeat("é", 2000)
	got := Truncate(msg, 2048)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 2048)
	assert.GreaterOrEqual(t, len(got), 2047)

	// 「影」3 bytes，從中間切要退回字元開頭
	assert.Equal(t, "ab", Truncate("ab影片", 4))
	assert.Equal(t, "ab影", Truncate("ab影片", 5))

	assert.Equal(t, "title: bad", Truncate("title: \xff\xfebad", 64))
	assert.Equal(t, "ab", Truncate("a\x00b", 64))
}
