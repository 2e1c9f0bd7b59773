package client

import (
	"errors"

	"github.com/jasonhq/relay/internal/access"
)

var (
	// ErrNotConnected is returned by sends attempted while the session is
	// not Active. Sends are never buffered across a disconnect.
	ErrNotConnected = errors.New("session is not active")
	// ErrAuthFailed means the server rejected the authenticate handshake.
	ErrAuthFailed = errors.New("authentication rejected by server")
	// ErrAccessDenied is a tier or membership rule violation.
	ErrAccessDenied = access.ErrAccessDenied
	// ErrChannelArchived rejects joins on archived channels; never retried.
	ErrChannelArchived = access.ErrChannelArchived
	// ErrMutationRejected means an edit or delete by a non-owner.
	ErrMutationRejected = errors.New("only the message sender can modify it")
	// ErrUploadFailed aborts the pending send; no partial message goes out.
	ErrUploadFailed = errors.New("file upload failed")
	// ErrBotUnavailable means the AI responder call failed; the user's
	// draft is preserved and no message is sent.
	ErrBotUnavailable = errors.New("ai responder unavailable")
	// ErrUnknownMessage is returned for edits or retries of an id the
	// store does not hold.
	ErrUnknownMessage = errors.New("unknown message id")
)
