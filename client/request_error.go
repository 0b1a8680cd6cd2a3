package client

import (
	"errors"
	"fmt"
)

type Status int

const (
	STATUS_UNKNOWN Status = iota
	// No reply within the timeout (single-shot client)
	STATUS_TIMEOUT
	// No reply after all attempts (polling client)
	STATUS_SERVER_OFFLINE
	// The socket returned an unrecoverable error
	STATUS_CLIENT_NETWORK_ERROR
	// The request could not be built (serialization, encryption)
	STATUS_CLIENT_REQUEST_ERROR
	// The reply was neither decryptable nor a plaintext JSON object
	STATUS_BAD_REPLY
)

var status_strings = []string{"STATUS_UNKNOWN", "STATUS_TIMEOUT", "STATUS_SERVER_OFFLINE",
	"STATUS_CLIENT_NETWORK_ERROR", "STATUS_CLIENT_REQUEST_ERROR", "STATUS_BAD_REPLY"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(status_strings) {
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
	return status_strings[s]
}

var (
	ErrServerOffline = errors.New("server seems to be offline, abandoning")
	ErrTimeout       = errors.New("timed out waiting for reply")
	ErrBadReply      = errors.New("reply could not be decoded")
)

/*
Returned by every client request that did not produce a reply. A structured
error reply from the server ({"error": ...}) is a reply, not a RequestError.

Use errors.Is(err, ErrServerOffline) to detect an unreachable broker, or
errors.As and Status() for the details.
*/
type RequestError struct {
	status Status
	err    error
}

func (e *RequestError) Error() string {
	if e.err != nil {
		return e.status.String() + ": " + e.err.Error()
	} else {
		return e.status.String()
	}
}

func (e *RequestError) Status() Status {
	return e.status
}

func (e *RequestError) Unwrap() error {
	return e.err
}
