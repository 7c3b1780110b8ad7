package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/mountsync/internal/utils"
)

const (
	DefaultConcurrency    = 8
	DefaultConnectTimeout = 60 * time.Second
	DefaultReadTimeout    = 300 * time.Second
	DefaultRegion         = "us-east-1"
)

var (
	home, _         = os.UserHomeDir()
	DefaultLogPath  = filepath.Join(home, ".mountsync", "logs")
	DefaultLockPath = filepath.Join(os.TempDir(), "mountsync.lock")
)

var (
	ErrNoLocation      = errors.New("object store location is required (--bucket or MOUNTSYNC_BUCKET)")
	ErrNoMountPath     = errors.New("mount path is required (--path or MOUNTSYNC_PATH)")
	ErrInvalidLocation = errors.New("invalid object store location")
)

// SyncConfig is resolved once per invocation and treated as read-only afterwards.
type SyncConfig struct {
	ObjectStoreLocation string        `json:"bucket"`
	MountPath           string        `json:"path"`
	LogPath             string        `json:"log"`
	LockPath            string        `json:"lock"`
	Region              string        `json:"region"`
	Endpoint            string        `json:"endpoint,omitempty"`
	Concurrency         int           `json:"concurrency"`
	ConnectTimeout      time.Duration `json:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	Debug               bool          `json:"debug"`
	Quiet               bool          `json:"quiet"`
	DryRun              bool          `json:"dry_run"`
	Remount             bool          `json:"remount"`

	// static credentials for S3-compatible endpoints; AWS uses its default chain when empty
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`

	// derived from ObjectStoreLocation by Validate
	Bucket string `json:"-"`
	Prefix string `json:"-"`
}

// Validate checks the fields every sync needs, then normalizes. It must be called before the
// config is used for a sync.
func (c *SyncConfig) Validate() error {
	if c.ObjectStoreLocation == "" {
		return ErrNoLocation
	}
	if c.MountPath == "" {
		return ErrNoMountPath
	}
	return c.Normalize()
}

// Normalize fills derived fields and defaults and resolves paths, tolerating an absent location
// or mount path. Status queries use it directly so a half-configured host can still be inspected.
func (c *SyncConfig) Normalize() error {
	var err error

	if c.ObjectStoreLocation != "" {
		if c.Bucket, c.Prefix, err = ParseLocation(c.ObjectStoreLocation); err != nil {
			return err
		}
	}

	if c.MountPath != "" {
		if c.MountPath, err = utils.ResolvePath(c.MountPath); err != nil {
			return fmt.Errorf("mount path: %w", err)
		}
	}

	if c.LogPath, err = c.LogDir(); err != nil {
		return err
	}

	if c.LockPath == "" {
		c.LockPath = DefaultLockPath
	}
	if c.LockPath, err = utils.ResolvePath(c.LockPath); err != nil {
		return fmt.Errorf("lock path: %w", err)
	}

	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}

	return nil
}

// LogDir resolves the log directory, falling back to DefaultLogPath. It does not depend on
// any other field, so logging can start before the rest of the config is validated.
func (c *SyncConfig) LogDir() (string, error) {
	dir := c.LogPath
	if dir == "" {
		dir = DefaultLogPath
	}
	dir, err := utils.ResolvePath(dir)
	if err != nil {
		return "", fmt.Errorf("log path: %w", err)
	}
	return dir, nil
}

// StoreURI renders the bucket and prefix back as s3://bucket/prefix.
func (c *SyncConfig) StoreURI() string {
	return "s3://" + c.Bucket + "/" + c.Prefix
}

// ParseLocation accepts `s3://bucket/prefix`, `bucket/prefix` or `bucket`.
// The returned prefix is either empty or ends with a single slash.
func ParseLocation(location string) (bucket string, prefix string, err error) {
	location = strings.TrimSpace(location)

	if strings.Contains(location, "://") {
		u, perr := url.Parse(location)
		if perr != nil {
			return "", "", fmt.Errorf("%w %q: %w", ErrInvalidLocation, location, perr)
		}
		if u.Scheme != "s3" {
			return "", "", fmt.Errorf("%w %q: unsupported scheme %q", ErrInvalidLocation, location, u.Scheme)
		}
		bucket, prefix = u.Host, u.Path
	} else {
		bucket, prefix, _ = strings.Cut(location, "/")
	}

	if bucket == "" {
		return "", "", fmt.Errorf("%w %q: missing bucket name", ErrInvalidLocation, location)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}
