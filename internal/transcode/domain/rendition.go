package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSegmentSeconds HLS 每段秒數
const DefaultSegmentSeconds = 4

// Rendition 單一輸出畫質
type Rendition struct {
	Name           string `json:"name"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	VideoBitrate   string `json:"videoBitrate"`
	AudioBitrate   string `json:"audioBitrate"`
	SegmentSeconds int    `json:"segmentSeconds"`
}

// DefaultRenditions 240p / 480p / 720p
func DefaultRenditions() []Rendition {
	return []Rendition{
		{Name: "240p", Width: 426, Height: 240, VideoBitrate: "400k", AudioBitrate: "64k", SegmentSeconds: DefaultSegmentSeconds},
		{Name: "480p", Width: 854, Height: 480, VideoBitrate: "800k", AudioBitrate: "96k", SegmentSeconds: DefaultSegmentSeconds},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2000k", AudioBitrate: "128k", SegmentSeconds: DefaultSegmentSeconds},
	}
}

// Validate check rendition setting
func (r Rendition) Validate() error {
	if r.Name == "" || strings.ContainsAny(r.Name, `/\ `) {
		return fmt.Errorf("rendition name[%s] invalid", r.Name)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("rendition[%s] size %dx%d invalid", r.Name, r.Width, r.Height)
	}
	if _, err := ParseBitrate(r.VideoBitrate); err != nil {
		return fmt.Errorf("rendition[%s] video bitrate: %w", r.Name, err)
	}
	if _, err := ParseBitrate(r.AudioBitrate); err != nil {
		return fmt.Errorf("rendition[%s] audio bitrate: %w", r.Name, err)
	}
	if r.SegmentSeconds <= 0 {
		return fmt.Errorf("rendition[%s] segment seconds must be positive", r.Name)
	}
	return nil
}

// Bandwidth master playlist BANDWIDTH (video + audio, bps)
func (r Rendition) Bandwidth() int {
	v, _ := ParseBitrate(r.VideoBitrate)
	a, _ := ParseBitrate(r.AudioBitrate)
	return v + a
}

// Resolution WxH
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ManifestName {name}.m3u8
func (r Rendition) ManifestName() string {
	return r.Name + ".m3u8"
}

// SegmentPattern {name}_%03d.ts
func (r Rendition) SegmentPattern() string {
	return r.Name + "_%03d.ts"
}

// ParseBitrate "400k" -> 400000, "2M" -> 2000000, "128000" -> 128000
func ParseBitrate(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty bitrate")
	}
	mul := 1
	switch {
	case strings.HasSuffix(s, "k"):
		mul, s = 1000, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mul, s = 1000000, strings.TrimSuffix(s, "m")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bitrate[%s] invalid", s)
	}
	return int(n * float64(mul)), nil
}

// ArtifactKind 產出檔案種類
type ArtifactKind string

const (
	ArtifactSegment  ArtifactKind = "segment"
	ArtifactVariant  ArtifactKind = "variant"
	ArtifactMaster   ArtifactKind = "master"
	ArtifactSubtitle ArtifactKind = "subtitle"
)

// Artifact 上傳後的檔案
type Artifact struct {
	Key         string       `json:"key"`
	URL         string       `json:"url"`
	ContentType string       `json:"contentType"`
	Kind        ArtifactKind `json:"kind"`
}

const (
	// KeyCategory storage key 第一層
	KeyCategory = "videos"
	// MasterManifestName master playlist file name
	MasterManifestName = "master.m3u8"
)

// ValidateDestinationID destinationId 直接組成 storage key，不能為空或帶路徑
func ValidateDestinationID(id string) error {
	if id == "" {
		return fmt.Errorf("destinationId is empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("destinationId[%s] must not contain path separators", id)
	}
	return nil
}

// DestinationPrefix videos/{destinationId}/
func DestinationPrefix(destinationID string) string {
	return fmt.Sprintf("%s/%s/", KeyCategory, destinationID)
}

// ArtifactKey videos/{destinationId}/{fileName}
func ArtifactKey(destinationID, fileName string) string {
	return DestinationPrefix(destinationID) + fileName
}

// MasterKey videos/{destinationId}/master.m3u8
func MasterKey(destinationID string) string {
	return ArtifactKey(destinationID, MasterManifestName)
}

// ContentType 依副檔名決定
func ContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".vtt":
		return "text/vtt"
	default:
		return "application/octet-stream"
	}
}

// KindOf 依檔名判斷種類
func KindOf(fileName string) ArtifactKind {
	switch {
	case fileName == MasterManifestName:
		return ArtifactMaster
	case strings.HasSuffix(fileName, "_vtt.m3u8"), strings.HasSuffix(fileName, ".vtt"):
		return ArtifactSubtitle
	case strings.HasSuffix(fileName, ".m3u8"):
		return ArtifactVariant
	default:
		return ArtifactSegment
	}
}
