package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/openmined/mountsync/internal/blob"
	"github.com/openmined/mountsync/internal/config"
	"github.com/openmined/mountsync/internal/lock"
	"github.com/openmined/mountsync/internal/mount"
	"github.com/openmined/mountsync/internal/runner"
	"github.com/openmined/mountsync/internal/sync"
	"github.com/openmined/mountsync/internal/utils"
	"github.com/openmined/mountsync/internal/version"
	"github.com/spf13/cobra"
)

func (a *app) syncCmd(dir sync.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(dir),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, dir)
		},
	}
}

// runSync starts logging before anything else so every failure, including a bad config,
// reaches the daily log file.
func (a *app) runSync(cmd *cobra.Command, dir sync.Direction) error {
	cfg := a.loadConfig()
	if err := a.setupLogging(cfg, cmd.OutOrStdout(), false); err != nil {
		return err
	}

	if err := a.syncOnce(cmd, cfg, dir); err != nil {
		slog.Error("sync failed", "direction", dir, "error", err)
		return err
	}
	return nil
}

func (a *app) syncOnce(cmd *cobra.Command, cfg *config.SyncConfig, dir sync.Direction) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd.SilenceUsage = true
	ctx := cmd.Context()

	slog.Debug("config", "bucket", cfg.StoreURI(), "path", cfg.MountPath, "log", cfg.LogPath,
		"lock", cfg.LockPath, "endpoint", cfg.Endpoint, "accessKey", utils.MaskSecret(cfg.AccessKey),
		"dryRun", cfg.DryRun, "version", version.Short())

	client, err := newBlobClient(ctx, cfg)
	if err != nil {
		return err
	}

	locks := lock.NewManager(cfg.LockPath)
	r := runner.New(newGate(cfg, client, locks), locks, newExecutor(cfg, client, locks), cfg.DryRun)
	report, err := r.Run(ctx, dir)
	if err != nil {
		return err
	}

	if report.Preview != nil && !cfg.Quiet {
		printPreview(cmd.OutOrStdout(), report.Preview)
	}
	return nil
}

func newBlobClient(ctx context.Context, cfg *config.SyncConfig) (*blob.BlobClient, error) {
	bc := blob.WithS3Config(cfg.Bucket, cfg.Prefix, cfg.Region)
	if cfg.Endpoint != "" {
		bc = blob.WithMinioConfig(cfg.Endpoint, cfg.Bucket, cfg.Prefix, cfg.AccessKey, cfg.SecretKey)
		bc.Region = cfg.Region
	}
	bc.ConnectTimeout = cfg.ConnectTimeout
	bc.ReadTimeout = cfg.ReadTimeout
	bc.Concurrency = cfg.Concurrency
	return blob.NewBlobClientWithS3Config(ctx, bc)
}

func newGate(cfg *config.SyncConfig, client *blob.BlobClient, locks *lock.Manager) *mount.Checker {
	mc := &mount.Config{
		MountPath: cfg.MountPath,
		Store:     client,
	}
	if cfg.Remount {
		mc.Remounter = mount.ExecRemounter{}
	}
	// lock and log directories that live on the mount only exist once it is attached
	for _, p := range []string{filepath.Dir(locks.Path()), cfg.LogPath} {
		if _, ok := utils.RelIfWithin(cfg.MountPath, p); ok {
			mc.Subdirs = append(mc.Subdirs, p)
		}
	}
	return mount.NewChecker(mc)
}

// newExecutor keeps the lock marker, its guard and the log directory out of the mirror when
// they live on the mount.
func newExecutor(cfg *config.SyncConfig, client *blob.BlobClient, locks *lock.Manager) *sync.Executor {
	var extra []string
	for _, p := range []string{locks.Path(), locks.GuardPath()} {
		if rel, ok := utils.RelIfWithin(cfg.MountPath, p); ok {
			extra = append(extra, "/"+rel)
		}
	}
	if rel, ok := utils.RelIfWithin(cfg.MountPath, cfg.LogPath); ok {
		extra = append(extra, "/"+rel+"/")
	}

	mountTree := sync.NewFileTree(cfg.MountPath)
	return sync.NewExecutor(
		sync.NewObjectTree(client, cfg.Bucket, cfg.Prefix),
		mountTree,
		sync.WithConcurrency(cfg.Concurrency),
		sync.WithIgnore(sync.LoadIgnoreList(mountTree.Fs(), extra...)),
	)
}

// printPreview lists a dry run on stdout. Real runs report through the logger.
func printPreview(w io.Writer, p *sync.Preview) {
	for _, c := range p.Changes {
		action := green.Render(string(c.Action))
		if c.Action == sync.ActionDelete {
			action = red.Render(string(c.Action))
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n", gray.Render(c.Pass), action, c.Path, gray.Render(humanizeBytes(c.Size)), gray.Render(c.Reason))
	}
	fmt.Fprintf(w, "%s %d to write, %d to delete %s\n",
		cyan.Render(string(p.Direction)), p.Count(sync.ActionWrite), p.Count(sync.ActionDelete),
		yellow.Render("(dry run, nothing changed)"))
}
