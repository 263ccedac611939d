package dataaccess

import (
	"fmt"

	"github.com/nemanja-m/gotransform/internal/shared/config"
)

// New builds the backend selected by the input configuration. Input and
// output must use the same backend type.
func New(in config.InputConfig, out config.OutputConfig, s3 config.S3Config) (DataAccess, error) {
	inType, outType := backendType(in.Type), backendType(out.Type)
	if inType != outType {
		return nil, fmt.Errorf("input type %q and output type %q must match", inType, outType)
	}
	opts := Options{Extensions: in.Extensions}

	switch inType {
	case "local":
		return NewLocal(in.Path, out.Path, opts), nil
	case "s3":
		backend, err := NewS3(S3Config{
			Endpoint:          s3.Endpoint,
			AccessKey:         s3.AccessKey,
			SecretKey:         s3.SecretKey,
			Token:             s3.Token,
			Bucket:            s3.Bucket,
			Region:            s3.Region,
			Secure:            s3.Secure,
			RequestsPerSecond: s3.RequestsPerSecond,
		}, in.Path, out.Path, opts)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
	return nil, fmt.Errorf("unsupported input type: %s", in.Type)
}

func backendType(t string) string {
	if t == "" {
		return "local"
	}
	return t
}
