package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"hls_transcode_service/internal/transcode/domain"
	errprocess "hls_transcode_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg 讓 execCommand 重新執行測試程式本身，由 TestHelperProcess 扮演 ffmpeg
func fakeFFmpeg(t *testing.T, mode string) {
	t.Helper()
	orig := execCommand
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FAKE_FFMPEG_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { execCommand = orig })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+2:]
			break
		}
	}

	switch os.Getenv("FAKE_FFMPEG_MODE") {
	case "fail":
		fmt.Fprint(os.Stderr, strings.Repeat("x", 4096)+"Invalid data found when processing input")
		os.Exit(1)
	case "empty":
		os.Exit(0)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "version":
		fmt.Println("ffmpeg version 6.1")
		os.Exit(0)
	case "bitmap_subs":
		if slices.Contains(args, "webvtt") {
			manifest := args[len(args)-1]
			_ = os.WriteFile(filepath.Join(filepath.Dir(manifest), "partial_vtt.m3u8"), []byte("#EXTM3U\n"), 0o644)
			fmt.Fprint(os.Stderr, "Subtitle encoding currently only possible from text to text or bitmap to bitmap")
			os.Exit(1)
		}
	}

	// ok: 寫出 playlist 與 segment
	var segPattern string
	for i, a := range args {
		if a == "-hls_segment_filename" {
			segPattern = args[i+1]
		}
	}
	manifest := args[len(args)-1]
	for i := 0; i < 2; i++ {
		_ = os.WriteFile(fmt.Sprintf(segPattern, i), []byte("ts"), 0o644)
	}
	_ = os.WriteFile(manifest, []byte("#EXTM3U\n"), 0o644)
	os.Exit(0)
}

var testRendition = domain.Rendition{Name: "240p", Width: 426, Height: 240, VideoBitrate: "400k", AudioBitrate: "64k", SegmentSeconds: 4}

func TestBuildHLSArgs(t *testing.T) {
	args := buildHLSArgs("/in/source.mp4", testRendition, "/out/240p", true)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i /in/source.mp4")
	assert.Contains(t, joined, "scale=426:240:force_original_aspect_ratio=decrease,pad=426:240:(ow-iw)/2:(oh-ih)/2")
	assert.Contains(t, joined, "-b:v 400k -maxrate 400k -bufsize 800000")
	assert.Contains(t, joined, "-b:a 64k")
	assert.Contains(t, joined, "-g 48 -keyint_min 48 -sc_threshold 0")
	assert.Contains(t, joined, "-map 0:a?")
	assert.Contains(t, joined, "-map 0:s?")
	assert.Contains(t, joined, "-c:s webvtt")
	assert.Contains(t, joined, "-hls_time 4 -hls_playlist_type vod")
	assert.Contains(t, joined, "-hls_segment_filename "+filepath.Join("/out/240p", "240p_%03d.ts"))
	assert.Equal(t, filepath.Join("/out/240p", "240p.m3u8"), args[len(args)-1])

	noSubs := strings.Join(buildHLSArgs("/in/source.mp4", testRendition, "/out/240p", false), " ")
	assert.NotContains(t, noSubs, "0:s?")
	assert.NotContains(t, noSubs, "webvtt")
}

func TestFFmpegEncoder_Encode(t *testing.T) {
	fakeFFmpeg(t, "ok")
	out := t.TempDir()

	files, err := NewFFmpegEncoder("ffmpeg", 1).Encode(context.Background(), "/in/source.mp4", testRendition, out)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(out, "240p.m3u8"), files[0])
	assert.Equal(t, filepath.Join(out, "240p_000.ts"), files[1])
	for _, f := range files {
		assert.Equal(t, out, filepath.Dir(f))
	}
}

func TestFFmpegEncoder_NonZeroExit(t *testing.T) {
	fakeFFmpeg(t, "fail")

	_, err := NewFFmpegEncoder("ffmpeg", 1).Encode(context.Background(), "/in/source.mp4", testRendition, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errprocess.ErrEncodeFailed))

	var encErr *errprocess.EncodeError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, 1, encErr.ExitCode)
	assert.LessOrEqual(t, len(encErr.StderrExcerpt), stderrTailSize)
	assert.True(t, strings.HasSuffix(encErr.StderrExcerpt, "Invalid data found when processing input"))
}

func TestFFmpegEncoder_BitmapSubtitlesFallBack(t *testing.T) {
	fakeFFmpeg(t, "bitmap_subs")
	out := t.TempDir()

	files, err := NewFFmpegEncoder("ffmpeg", 1).Encode(context.Background(), "/in/source.mp4", testRendition, out)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, f := range files {
		assert.NotContains(t, filepath.Base(f), "vtt")
	}
}

func TestFFmpegEncoder_OtherFailureKeepsError(t *testing.T) {
	fakeFFmpeg(t, "fail")

	_, err := NewFFmpegEncoder("ffmpeg", 1).Encode(context.Background(), "/in/source.mp4", testRendition, t.TempDir())
	assert.True(t, errors.Is(err, errprocess.ErrEncodeFailed))
	assert.False(t, isSubtitleFailure(err.Error()))
}

func TestFFmpegEncoder_NoOutput(t *testing.T) {
	fakeFFmpeg(t, "empty")

	_, err := NewFFmpegEncoder("ffmpeg", 1).Encode(context.Background(), "/in/source.mp4", testRendition, t.TempDir())
	var encErr *errprocess.EncodeError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, 0, encErr.ExitCode)
	assert.Equal(t, "no output files", encErr.StderrExcerpt)
}

func TestFFmpegEncoder_Timeout(t *testing.T) {
	fakeFFmpeg(t, "hang")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewFFmpegEncoder("ffmpeg", 1).Encode(ctx, "/in/source.mp4", testRendition, t.TempDir())
	assert.True(t, errors.Is(err, errprocess.ErrTimeout), "%v", err)
}

func TestFFmpegEncoder_InvalidRendition(t *testing.T) {
	bad := testRendition
	bad.Width = 0
	_, err := NewFFmpegEncoder("ffmpeg", 1).Encode(context.Background(), "/in/source.mp4", bad, t.TempDir())
	assert.True(t, errors.Is(err, errprocess.ErrInvalidInput))
}

func TestFFmpegEncoder_Probe(t *testing.T) {
	fakeFFmpeg(t, "version")
	assert.NoError(t, NewFFmpegEncoder("", 0).Probe(context.Background()))

	fakeFFmpeg(t, "fail")
	assert.Error(t, NewFFmpegEncoder("", 0).Probe(context.Background()))
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("0123"))
	_, _ = b.Write([]byte("456789"))
	assert.Equal(t, "23456789", b.String())

	_, _ = b.Write([]byte("abcdefghijkl"))
	assert.Equal(t, "efghijkl", b.String())
}

func TestTailBuffer_RuneBoundary(t *testing.T) {
	b := newTailBuffer(8)
	// 保留最後 8 bytes 會從第一個「é」中間開始
	_, _ = b.Write([]byte("aééééb"))
	got := b.String()
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "éééb", got)

	_, _ = b.Write([]byte{0xff, 'z'})
	assert.True(t, utf8.ValidString(b.String()))
	assert.True(t, strings.HasSuffix(b.String(), "z"))
}
