package client

import "errors"

var (
	// ErrClientNotActive occurs when Attach, Detach, or a sync-affecting
	// call is made on a Client that is not Activated.
	ErrClientNotActive = errors.New("client: not active")

	// ErrDocumentNotAttached occurs when Detach is called with a
	// document this Client never attached, or already detached.
	ErrDocumentNotAttached = errors.New("client: document not attached")

	// ErrAlreadyAttached occurs when Attach is called twice for the
	// same document key without an intervening Detach.
	ErrAlreadyAttached = errors.New("client: document already attached")
)

// opTag values are two-letter operation tags attached to the error-level
// log lines of the five unary RPCs so operators can grep by RPC kind.
// Watch-stream failures are logged without a tag.
const (
	opActivate   = "AC"
	opDeactivate = "DC"
	opAttach     = "AD"
	opDetach     = "DD"
	opPushPull   = "PP"
)
