package media

import (
	"io"
	"strings"

	"camsync/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/h264writer"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
)

// Format describes one supported recording encoding: which track codecs it
// accepts and the file extension of each per-kind container.
type Format struct {
	MimeType    string
	VideoCodecs []string
	AudioCodecs []string
	VideoExt    string
	AudioExt    string
}

// formats is the registry of encodings this assembler can produce, keyed by
// the preference-list mime type.
// The IVF writer can only frame VP8 and AV1, so VP9 encodings are absent: a
// preference list naming one falls through to the next supported entry.
var formats = map[string]Format{
	"video/webm;codecs=vp8,opus": {
		MimeType:    "video/webm;codecs=vp8,opus",
		VideoCodecs: []string{webrtc.MimeTypeVP8},
		AudioCodecs: []string{webrtc.MimeTypeOpus},
		VideoExt:    ".ivf",
		AudioExt:    ".ogg",
	},
	"video/webm": {
		MimeType:    "video/webm",
		VideoCodecs: []string{webrtc.MimeTypeVP8, webrtc.MimeTypeAV1},
		AudioCodecs: []string{webrtc.MimeTypeOpus},
		VideoExt:    ".ivf",
		AudioExt:    ".ogg",
	},
	"video/mp4": {
		MimeType:    "video/mp4",
		VideoCodecs: []string{webrtc.MimeTypeH264},
		AudioCodecs: nil,
		VideoExt:    ".h264",
		AudioExt:    "",
	},
}

// IsTypeSupported reports whether the assembler can produce the given
// encoding.
func IsTypeSupported(mimeType string) bool {
	_, ok := formats[mimeType]
	return ok
}

// SelectMimeType returns the first preference for which supported returns
// true. Pure function of its inputs so every participant resolves the same
// encoding given the same platform support.
func SelectMimeType(preferences []string, supported func(string) bool) (string, error) {
	for _, p := range preferences {
		if supported(p) {
			return p, nil
		}
	}
	return "", domain.ErrUnsupportedMime
}

// accepts reports whether the format can contain a track with the given codec
// mime type, and whether that codec is audio.
func (f Format) accepts(codecMime string) (ok, isAudio bool) {
	for _, c := range f.VideoCodecs {
		if strings.EqualFold(c, codecMime) {
			return true, false
		}
	}
	for _, c := range f.AudioCodecs {
		if strings.EqualFold(c, codecMime) {
			return true, true
		}
	}
	return false, false
}

// newTrackWriter creates the container writer for one track codec within the
// format, writing into w.
func (f Format) newTrackWriter(w io.Writer, codecMime string) (media.Writer, error) {
	switch {
	case strings.EqualFold(codecMime, webrtc.MimeTypeVP8):
		return ivfwriter.NewWith(w)
	case strings.EqualFold(codecMime, webrtc.MimeTypeAV1):
		return ivfwriter.NewWith(w, ivfwriter.WithCodec(webrtc.MimeTypeAV1))
	case strings.EqualFold(codecMime, webrtc.MimeTypeOpus):
		return oggwriter.NewWith(w, 48000, 2)
	case strings.EqualFold(codecMime, webrtc.MimeTypeH264):
		return h264writer.NewWith(w), nil
	default:
		return nil, domain.ErrUnsupportedMime
	}
}

// extFor maps a container/source mime type to a file extension.
func extFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "video/mp4"):
		return ".mp4"
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8), strings.EqualFold(mimeType, webrtc.MimeTypeAV1):
		return ".ivf"
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		return ".ogg"
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return ".h264"
	default:
		return ".bin"
	}
}
