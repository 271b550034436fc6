package app

import (
	"fmt"
	"strings"

	"hls_transcode_service/internal/transcode/domain"
)

const subtitleGroupID = "subs"

// BuildMasterPlaylist 依畫質順序列出各 variant playlist，subtitlePlaylist 為空時不加字幕群組
func BuildMasterPlaylist(renditions []domain.Rendition, subtitlePlaylist string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	if subtitlePlaylist != "" {
		fmt.Fprintf(&b,
			"#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"%s\",NAME=\"default\",DEFAULT=YES,AUTOSELECT=YES,URI=\"%s\"\n",
			subtitleGroupID, subtitlePlaylist,
		)
	}

	for _, r := range renditions {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s", r.Bandwidth(), r.Resolution())
		if subtitlePlaylist != "" {
			fmt.Fprintf(&b, ",SUBTITLES=\"%s\"", subtitleGroupID)
		}
		b.WriteString("\n")
		b.WriteString(r.ManifestName())
		b.WriteString("\n")
	}
	return b.String()
}
