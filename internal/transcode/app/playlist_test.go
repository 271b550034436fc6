package app

import (
	"testing"

	"hls_transcode_service/internal/transcode/domain"

	"github.com/stretchr/testify/assert"
)

func TestBuildMasterPlaylist(t *testing.T) {
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=464000,RESOLUTION=426x240\n" +
		"240p.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=896000,RESOLUTION=854x480\n" +
		"480p.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2128000,RESOLUTION=1280x720\n" +
		"720p.m3u8\n"

	assert.Equal(t, want, BuildMasterPlaylist(domain.DefaultRenditions(), ""))
}

func TestBuildMasterPlaylist_WithSubtitles(t *testing.T) {
	out := BuildMasterPlaylist(domain.DefaultRenditions()[:1], "240p_vtt.m3u8")

	assert.Contains(t, out, `#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="default",DEFAULT=YES,AUTOSELECT=YES,URI="240p_vtt.m3u8"`)
	assert.Contains(t, out, `#EXT-X-STREAM-INF:BANDWIDTH=464000,RESOLUTION=426x240,SUBTITLES="subs"`)
}
