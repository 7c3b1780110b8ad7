package main

import (
	"log/slog"

	"github.com/openmined/mountsync/internal/lock"
	"github.com/openmined/mountsync/internal/mount"
	"github.com/openmined/mountsync/internal/status"
	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lock state, last successful sync and storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.loadConfig()
			// status output goes to stdout, so terminal logging stays at errors only
			cfg.Quiet = true
			if err := a.setupLogging(cfg, cmd.ErrOrStderr(), true); err != nil {
				return err
			}
			if err := cfg.Normalize(); err != nil {
				slog.Error("status", "error", err)
				return err
			}
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			sc := &status.Config{
				MountPath: cfg.MountPath,
				LogDir:    cfg.LogPath,
				Lock:      lock.NewManager(cfg.LockPath),
			}
			if cfg.MountPath != "" {
				sc.Mount = mount.NewChecker(&mount.Config{MountPath: cfg.MountPath})
			}
			if cfg.Bucket != "" {
				sc.StoreLocation = cfg.StoreURI()
				if client, err := newBlobClient(ctx, cfg); err != nil {
					slog.Warn("status object store client", "error", err)
				} else {
					sc.Store = client
				}
			}

			s := status.NewReporter(sc).GetStatus(ctx)

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return status.RenderJSON(cmd.OutOrStdout(), s)
			}
			return status.RenderText(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().Bool("json", false, "print status as JSON")
	return cmd
}
