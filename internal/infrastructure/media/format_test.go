package media

import (
	"testing"

	"camsync/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestSelectMimeType(t *testing.T) {
	preferences := []string{
		"video/webm;codecs=vp9,opus",
		"video/webm",
		"video/mp4",
	}

	tests := []struct {
		name      string
		supported map[string]bool
		want      string
		wantErr   bool
	}{
		{
			name: "first preference wins",
			supported: map[string]bool{
				"video/webm;codecs=vp9,opus": true,
				"video/webm":                 true,
				"video/mp4":                  true,
			},
			want: "video/webm;codecs=vp9,opus",
		},
		{
			name: "falls through to second",
			supported: map[string]bool{
				"video/webm": true,
				"video/mp4":  true,
			},
			want: "video/webm",
		},
		{
			name:      "falls through to last",
			supported: map[string]bool{"video/mp4": true},
			want:      "video/mp4",
		},
		{
			name:      "nothing supported",
			supported: map[string]bool{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectMimeType(preferences, func(m string) bool { return tt.supported[m] })
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnsupportedMime)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectMimeType_EmptyPreferences(t *testing.T) {
	_, err := SelectMimeType(nil, func(string) bool { return true })
	assert.ErrorIs(t, err, domain.ErrUnsupportedMime)
}

func TestIsTypeSupported(t *testing.T) {
	assert.True(t, IsTypeSupported("video/webm;codecs=vp8,opus"))
	assert.True(t, IsTypeSupported("video/webm"))
	assert.True(t, IsTypeSupported("video/mp4"))
	// The IVF writer cannot frame VP9, so a vp9 encoding is not offered.
	assert.False(t, IsTypeSupported("video/webm;codecs=vp9,opus"))
	assert.False(t, IsTypeSupported("video/x-matroska"))
	assert.False(t, IsTypeSupported(""))
}

// Every advertised encoding must have a writer for each codec it accepts, so
// SelectMimeType never picks one the assembler cannot actually produce.
func TestEveryAcceptedCodecHasWriter(t *testing.T) {
	for mime, f := range formats {
		for _, codec := range append(append([]string{}, f.VideoCodecs...), f.AudioCodecs...) {
			buf := newChunkBuffer()
			w, err := f.newTrackWriter(buf, codec)
			assert.NoError(t, err, "format %s codec %s", mime, codec)
			if w != nil {
				assert.NoError(t, w.Close())
			}
		}
	}
}

func TestFormatAccepts(t *testing.T) {
	webm := formats["video/webm"]

	ok, isAudio := webm.accepts(webrtc.MimeTypeVP8)
	assert.True(t, ok)
	assert.False(t, isAudio)

	ok, isAudio = webm.accepts(webrtc.MimeTypeOpus)
	assert.True(t, ok)
	assert.True(t, isAudio)

	ok, _ = webm.accepts(webrtc.MimeTypeH264)
	assert.False(t, ok)

	mp4 := formats["video/mp4"]
	ok, isAudio = mp4.accepts(webrtc.MimeTypeH264)
	assert.True(t, ok)
	assert.False(t, isAudio)

	ok, _ = mp4.accepts(webrtc.MimeTypeOpus)
	assert.False(t, ok)
}

func TestExtFor(t *testing.T) {
	assert.Equal(t, ".webm", extFor("video/webm;codecs=vp9,opus"))
	assert.Equal(t, ".webm", extFor("video/webm"))
	assert.Equal(t, ".mp4", extFor("video/mp4"))
	assert.Equal(t, ".ivf", extFor(webrtc.MimeTypeVP8))
	assert.Equal(t, ".ivf", extFor(webrtc.MimeTypeAV1))
	assert.Equal(t, ".ogg", extFor(webrtc.MimeTypeOpus))
	assert.Equal(t, ".bin", extFor("application/octet-stream"))
}

func TestChunkBuffer(t *testing.T) {
	buf := newChunkBuffer()

	n, err := buf.Write([]byte("abc"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	chunk := []byte("def")
	buf.Append(chunk)
	// Write copies; a caller mutating its slice afterwards must not corrupt
	// earlier chunks.
	src := []byte("ghi")
	buf.Write(src)
	src[0] = 'X'

	assert.Equal(t, 9, buf.Size())
	assert.Equal(t, []byte("abcdefghi"), buf.Assemble())
}
