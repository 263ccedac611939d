package dataaccess

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"

	"github.com/minio/minio-go/v7"

	"github.com/nemanja-m/gotransform/pkg/core"
)

var transientS3Codes = map[string]bool{
	"SlowDown":             true,
	"SlowDownRead":         true,
	"SlowDownWrite":        true,
	"RequestTimeout":       true,
	"RequestTimeTooSkewed": true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
}

// IsTransientCause reports whether a storage failure may clear on retry:
// timeouts, throttling, connection resets and server-side errors.
func IsTransientCause(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code != "" {
		if transientS3Codes[resp.Code] {
			return true
		}
		return resp.StatusCode >= 500
	}
	return false
}

func classify(kind core.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	return &core.Error{Kind: kind, Transient: IsTransientCause(err), Err: err}
}

func readError(err error) error {
	return classify(core.KindRead, err)
}

func writeError(err error) error {
	return classify(core.KindWrite, err)
}
