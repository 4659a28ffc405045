package muxer

import "errors"

var (
	// ErrMuxerClosed 多路复用器已关闭
	ErrMuxerClosed = errors.New("muxer: muxer is closed")

	// ErrStreamClosed 流已关闭
	ErrStreamClosed = errors.New("muxer: stream is closed")
)
