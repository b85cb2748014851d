package domain

import "errors"

var (
	ErrPeerNotFound       = errors.New("peer not found")
	ErrCameraNotFound     = errors.New("camera not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNoActiveStreams    = errors.New("no active local stream")
	ErrRecordingActive    = errors.New("recording already in progress")
	ErrChannelClosed      = errors.New("signaling channel closed")
	ErrChannelUnavailable = errors.New("signaling channel unavailable")
	ErrUnsupportedMime    = errors.New("no supported recording mime type")
)
