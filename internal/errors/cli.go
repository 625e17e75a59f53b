package errors

import (
	"context"
	stderrors "errors"

	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

// ToCLIError turns any error from the deploy pipeline into the CLI's
// structured error. Pipeline kinds take precedence over the HTTP class of
// their cause so exit codes identify the failing phase.
func ToCLIError(err error) types.CLIError {
	if err == nil {
		return types.CLIError{}
	}

	var (
		scanErr *ScanError
		negErr  *NegotiationError
		incErr  *InconsistentManifestError
		upErr   *UploadError
		appErr  *utils.AppError
	)
	switch {
	case stderrors.As(err, &scanErr):
		b := utils.NewCLIError(utils.ErrCodeScanFailed, err.Error())
		if scanErr.Path != "" {
			b.WithContext("path", scanErr.Path)
		}
		return b.Build()
	case stderrors.As(err, &negErr):
		b := utils.NewCLIError(utils.ErrCodeNegotiationFailed, err.Error()).
			WithHTTPStatus(negErr.Status)
		if cause := underlyingCode(err); cause != "" {
			b.WithContext("cause", cause)
		}
		return b.Build()
	case stderrors.As(err, &incErr):
		return utils.NewCLIError(utils.ErrCodeInconsistentManifest, err.Error()).
			WithContext("deployId", incErr.DeployID).
			WithContext("digest", incErr.Digest).
			Build()
	case stderrors.As(err, &upErr):
		b := utils.NewCLIError(utils.ErrCodeUploadFailed, err.Error()).
			WithHTTPStatus(upErr.Status).
			WithRetryable(IsRetryable(upErr.Err)).
			WithContext("path", upErr.Path).
			WithContext("digest", upErr.Digest)
		if cause := underlyingCode(err); cause != "" {
			b.WithContext("cause", cause)
		}
		return b.Build()
	case stderrors.As(err, &appErr):
		return appErr.CLIError
	case stderrors.Is(err, context.Canceled):
		return utils.NewCLIError(utils.ErrCodeCancelled, err.Error()).Build()
	}
	return utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
}

func underlyingCode(err error) string {
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ""
}
