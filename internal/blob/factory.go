package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Options selects and configures a blob.Store implementation.
type Options struct {
	Driver Driver
	// FSRoot is the directory root when Driver is fs (default ./blobdata).
	FSRoot string
	// S3 is used when Driver is s3. An empty bucket falls back to OpenFromEnv.
	S3 S3Config
}

// OptionsFromEnv reads blob options from the environment.
//
//	WORKPAL_BLOB_DRIVER: fs|s3|memory (default fs)
//	WORKPAL_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in internal/infra/blob/s3)
func OptionsFromEnv() Options {
	return Options{
		Driver: Driver(strings.ToLower(os.Getenv("WORKPAL_BLOB_DRIVER"))),
		FSRoot: os.Getenv("WORKPAL_BLOB_FS_ROOT"),
	}
}

// Open constructs the blob.Store selected by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		if opts.S3.Bucket == "" {
			return OpenFromEnv(ctx)
		}
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
