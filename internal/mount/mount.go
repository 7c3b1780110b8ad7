package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/openmined/mountsync/internal/utils"
	"github.com/shirou/gopsutil/v4/disk"
)

var (
	ErrCredential       = errors.New("object store credentials unusable")
	ErrStoreUnreachable = errors.New("object store unreachable")
	ErrNotMounted       = errors.New("path is not a mounted network filesystem")
	ErrNotWritable      = errors.New("mount is not writable")
)

// networkFstypes are the filesystem types accepted as a networked mount. fuse.* is matched by prefix.
var networkFstypes = map[string]struct{}{
	"nfs":   {},
	"nfs4":  {},
	"efs":   {},
	"cifs":  {},
	"smb3":  {},
	"smbfs": {},
	"9p":    {},
}

// StoreChecker is the subset of the object store client needed to gate a sync.
type StoreChecker interface {
	CheckCredentials(ctx context.Context) error
	CheckAccess(ctx context.Context) error
}

type MountInfo struct {
	Device     string `json:"device"`
	Mountpoint string `json:"mountpoint"`
	Fstype     string `json:"fstype"`
}

// MountTable looks up the mount whose mountpoint is exactly path. A nil info means path is
// not a mountpoint.
type MountTable interface {
	Lookup(ctx context.Context, path string) (*MountInfo, error)
}

// Remounter attempts to re-attach a mount that went away.
type Remounter interface {
	Remount(ctx context.Context, path string) error
}

type Config struct {
	MountPath string
	Store     StoreChecker
	Table     MountTable
	Remounter Remounter // nil disables the remount attempt
	Subdirs   []string  // created if absent once the mount is confirmed
	AnyFstype bool      // accept any filesystem type as long as path is a mountpoint
}

type Checker struct {
	cfg *Config
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Table == nil {
		cfg.Table = SystemMountTable{}
	}
	return &Checker{cfg: cfg}
}

// CheckReady gates every sync: credentials, then store listing, then the mount itself.
// It returns nil when a sync may proceed.
func (c *Checker) CheckReady(ctx context.Context) error {
	if err := c.cfg.Store.CheckCredentials(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCredential, err)
	}

	if err := c.cfg.Store.CheckAccess(ctx); err != nil {
		if isCredentialRejection(err) {
			return fmt.Errorf("%w: %w", ErrCredential, err)
		}
		return fmt.Errorf("%w: %w", ErrStoreUnreachable, err)
	}

	info, reason := c.lookup(ctx)
	if info == nil && c.cfg.Remounter != nil {
		slog.Warn("mount missing, attempting remount", "path", c.cfg.MountPath, "reason", reason)
		if err := c.cfg.Remounter.Remount(ctx, c.cfg.MountPath); err != nil {
			slog.Error("remount failed", "path", c.cfg.MountPath, "error", err)
		} else {
			info, reason = c.lookup(ctx)
		}
	}
	if info == nil {
		return fmt.Errorf("%w: %s", ErrNotMounted, reason)
	}
	slog.Debug("mount ok", "path", info.Mountpoint, "device", info.Device, "fstype", info.Fstype)

	if err := checkWritable(c.cfg.MountPath); err != nil {
		return fmt.Errorf("%w: %w", ErrNotWritable, err)
	}

	for _, dir := range c.cfg.Subdirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Mounted reports whether the path is currently a usable mount, without touching the object
// store. Status uses it to describe a down mount instead of failing.
func (c *Checker) Mounted(ctx context.Context) (bool, string) {
	info, reason := c.lookup(ctx)
	return info != nil, reason
}

func (c *Checker) lookup(ctx context.Context) (*MountInfo, string) {
	path := c.cfg.MountPath
	if !utils.DirExists(path) {
		return nil, fmt.Sprintf("%s does not exist", path)
	}

	info, err := c.cfg.Table.Lookup(ctx, path)
	if err != nil {
		return nil, fmt.Sprintf("read mount table: %v", err)
	}
	if info == nil {
		return nil, fmt.Sprintf("%s is a plain directory, not a mountpoint", path)
	}
	if !c.cfg.AnyFstype && !IsNetworkFstype(info.Fstype) {
		return nil, fmt.Sprintf("%s is mounted as %s, not a network filesystem", path, info.Fstype)
	}
	return info, ""
}

// credentialRejection is implemented by store errors that know the request was refused for
// its credentials (invalid key, bad signature, expired token).
type credentialRejection interface {
	CredentialRejected() bool
}

func isCredentialRejection(err error) bool {
	var cr credentialRejection
	return errors.As(err, &cr) && cr.CredentialRejected()
}

func IsNetworkFstype(fstype string) bool {
	if strings.HasPrefix(fstype, "fuse.") {
		return true
	}
	_, ok := networkFstypes[fstype]
	return ok
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".mountsync-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// ===================================================================================================

// SystemMountTable reads the host partition table.
type SystemMountTable struct{}

func (SystemMountTable) Lookup(ctx context.Context, path string) (*MountInfo, error) {
	target := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		target = resolved
	}
	target = filepath.Clean(target)

	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	// later entries shadow earlier ones mounted on the same point
	var found *MountInfo
	for _, p := range parts {
		if filepath.Clean(p.Mountpoint) == target {
			found = &MountInfo{Device: p.Device, Mountpoint: p.Mountpoint, Fstype: p.Fstype}
		}
	}
	return found, nil
}

// ExecRemounter runs `mount <path>`, relying on an fstab entry for the path.
type ExecRemounter struct{}

func (ExecRemounter) Remount(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, "mount", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("mount %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ===================================================================================================

type DiskUsage struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
}

// Usage reports bytes used and capacity of the filesystem holding path.
func Usage(ctx context.Context, path string) (*DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, err
	}
	return &DiskUsage{Used: u.Used, Total: u.Total}, nil
}
