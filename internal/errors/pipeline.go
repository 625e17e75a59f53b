// Package errors holds the deploy pipeline's error kinds and the
// classification of Deploy Service failures into stable CLI errors.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinels for errors.Is; each typed error below matches exactly one.
var (
	ErrScan                 = stderrors.New("scan failed")
	ErrNegotiationFailed    = stderrors.New("negotiation failed")
	ErrInconsistentManifest = stderrors.New("inconsistent manifest")
	ErrUploadFailed         = stderrors.New("upload failed")
)

// ScanError reports a filesystem problem under the deploy root.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("scan failed: %v", e.Err)
	}
	return fmt.Sprintf("scan failed: %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error        { return e.Err }
func (e *ScanError) Is(target error) bool { return target == ErrScan }

// NegotiationError reports a failed deploy creation. Status is 0 when the
// request never got an HTTP response.
type NegotiationError struct {
	Status int
	Detail string
	Err    error
}

func (e *NegotiationError) Error() string {
	msg := "negotiation failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NegotiationError) Unwrap() error        { return e.Err }
func (e *NegotiationError) Is(target error) bool { return target == ErrNegotiationFailed }

// InconsistentManifestError means the service asked for a digest that the
// local index never produced.
type InconsistentManifestError struct {
	DeployID string
	Digest   string
}

func (e *InconsistentManifestError) Error() string {
	return fmt.Sprintf("inconsistent manifest: deploy %s requires unknown digest %s", e.DeployID, e.Digest)
}

func (e *InconsistentManifestError) Is(target error) bool { return target == ErrInconsistentManifest }

// UploadError reports the first upload that failed after retries.
type UploadError struct {
	Path   string
	Digest string
	Status int
	Err    error
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload failed: %s (%s): status %d: %v", e.Path, e.Digest, e.Status, e.Err)
	}
	return fmt.Sprintf("upload failed: %s (%s): %v", e.Path, e.Digest, e.Err)
}

func (e *UploadError) Unwrap() error        { return e.Err }
func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }
