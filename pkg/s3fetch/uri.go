package s3fetch

import (
	"errors"
	"strings"
)

const uriScheme = "s3://"

// IsS3URI reports whether s starts with s3://.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, uriScheme)
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, uriScheme), "/")
	if bucket == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}
	return bucket, key, nil
}
