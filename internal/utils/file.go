package utils

import (
	"crypto/md5"
	"fmt"
	"io"
)

// MD5Hex returns the hex encoded MD5 digest of everything read from r.
// S3 reports the same digest as ETag for single part uploads.
func MD5Hex(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
