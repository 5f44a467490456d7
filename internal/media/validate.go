package media

import (
	"fmt"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
)

// Limits caps media size per platform. Zero means no cap enforced here.
type Limits struct {
	MaxImageBytes int64
	MaxVideoBytes int64
}

var platformLimits = map[string]Limits{
	"twitter":   {MaxImageBytes: 5 << 20, MaxVideoBytes: 512 << 20},
	"linkedin":  {MaxImageBytes: 8 << 20, MaxVideoBytes: 200 << 20},
	"tiktok":    {MaxVideoBytes: 4 << 30},
	"instagram": {MaxImageBytes: 8 << 20, MaxVideoBytes: 1 << 30},
	"bluesky":   {MaxImageBytes: 1 << 20, MaxVideoBytes: 100 << 20},
	"mastodon":  {MaxImageBytes: 16 << 20, MaxVideoBytes: 99 << 20},
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".avi": true, ".mkv": true, ".m4v": true,
}

// IsVideoURL classifies a media URL by file extension, ignoring any query
// string.
func IsVideoURL(mediaURL string) bool {
	trimmed := mediaURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return videoExtensions[strings.ToLower(path.Ext(trimmed))]
}

// Validate sniffs the real content type of downloaded bytes and checks it
// against the platform's size limits. The sniffed type wins over whatever
// the remote server claimed.
func Validate(platform string, data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return "", fmt.Errorf("unable to detect media type: %w", err)
	}
	if kind == filetype.Unknown {
		return "", fmt.Errorf("unrecognized media type")
	}

	limits := platformLimits[platform]
	size := int64(len(data))

	switch {
	case filetype.IsImage(data):
		if limits.MaxImageBytes > 0 && size > limits.MaxImageBytes {
			return "", fmt.Errorf("image is %d bytes, over the %s limit of %d", size, platform, limits.MaxImageBytes)
		}
	case filetype.IsVideo(data):
		if limits.MaxVideoBytes > 0 && size > limits.MaxVideoBytes {
			return "", fmt.Errorf("video is %d bytes, over the %s limit of %d", size, platform, limits.MaxVideoBytes)
		}
	default:
		return "", fmt.Errorf("unsupported media type %s", kind.MIME.Value)
	}

	return kind.MIME.Value, nil
}

// IsGIF reports whether the bytes are an animated-capable GIF; some
// platforms route GIFs through the video pipeline.
func IsGIF(data []byte) bool {
	kind, _ := filetype.Match(data)
	return kind == matchers.TypeGif
}
