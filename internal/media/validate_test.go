package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestIsVideoURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/clip.mp4", true},
		{"https://cdn.example.com/clip.MP4", true},
		{"https://cdn.example.com/clip.mov?sig=abc123", true},
		{"https://cdn.example.com/clip.webm#t=30", true},
		{"https://cdn.example.com/photo.jpg", false},
		{"https://cdn.example.com/photo.png?format=mp4", false},
		{"https://cdn.example.com/download", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsVideoURL(tt.url), tt.url)
	}
}

func TestValidateImage(t *testing.T) {
	mime, err := Validate("twitter", pngBytes)

	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
}

func TestValidateUnknownBytes(t *testing.T) {
	_, err := Validate("twitter", []byte("definitely not a media file"))
	assert.Error(t, err)
}

func TestValidateOversizedImage(t *testing.T) {
	// bluesky caps images at 1 MiB
	big := make([]byte, (1<<20)+1)
	copy(big, pngBytes)

	_, err := Validate("bluesky", big)
	assert.Error(t, err)

	// the same bytes pass on a platform with a larger cap
	_, err = Validate("mastodon", big)
	assert.NoError(t, err)
}

func TestIsGIF(t *testing.T) {
	gif := append([]byte("GIF89a"), make([]byte, 10)...)

	assert.True(t, IsGIF(gif))
	assert.False(t, IsGIF(pngBytes))
}
