package observability

import (
	"errors"

	"github.com/searchktools/concbench/core/http"
)

// Close reasons recorded by RecordClose
const (
	CloseEOF              = "eof"
	CloseIOError          = "io-error"
	CloseIdle             = "idle"
	CloseHeaderTooLarge   = "header-too-large"
	CloseMalformedRequest = "malformed-request"
	CloseTruncatedBody    = "truncated-body"
	CloseBodyTooLarge     = "body-too-large"
	CloseSaturated        = "saturated"
	CloseRequested        = "close-requested"
	CloseShutdown         = "shutdown"
	CloseRegisterFailed   = "register-failed"
)

// ScanFailureReason maps a request scanning error to its close reason
func ScanFailureReason(err error) string {
	switch {
	case errors.Is(err, http.ErrHeaderTooLarge):
		return CloseHeaderTooLarge
	case errors.Is(err, http.ErrMalformedRequestLine):
		return CloseMalformedRequest
	case errors.Is(err, http.ErrBodyTooLarge):
		return CloseBodyTooLarge
	case errors.Is(err, http.ErrTruncatedBody):
		return CloseTruncatedBody
	}
	return CloseIOError
}
