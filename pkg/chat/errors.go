// Copyright 2024-2026 Aiku AI

package chat

import "errors"

var (
	// ErrTransport is a connection-level fault. It is retryable unless the
	// associated cause is CauseLoggedOut.
	ErrTransport = errors.New("transport error")
	// ErrStream marks failures that originate in the transport stream layer.
	ErrStream = errors.New("stream error")
	// ErrLoggedOut is returned by the supervisor once the credentials were
	// revoked and purged.
	ErrLoggedOut = errors.New("logged out")

	// ErrDownload indicates a media download timeout or transport fault.
	ErrDownload = errors.New("media download failed")
	// ErrEmptyPayload indicates a zero-length media download.
	ErrEmptyPayload = errors.New("empty media payload")
	// ErrCodec indicates a sticker transform failure.
	ErrCodec = errors.New("sticker conversion failed")
	// ErrDelivery indicates the sticker could not be sent.
	ErrDelivery = errors.New("sticker delivery failed")
	// ErrFileSystem indicates a scratch I/O fault.
	ErrFileSystem = errors.New("scratch file error")
	// ErrUnsupportedMedia indicates a media reference the transport cannot download.
	ErrUnsupportedMedia = errors.New("unsupported media reference")
)
