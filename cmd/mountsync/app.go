package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/mountsync/internal/config"
	"github.com/openmined/mountsync/internal/runlog"
	"github.com/openmined/mountsync/internal/sync"
	"github.com/openmined/mountsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "MOUNTSYNC"

// app holds per-invocation state so commands can be built fresh in tests.
type app struct {
	v       *viper.Viper
	logFile io.Closer
}

func newApp() *app {
	return &app{v: viper.New()}
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mountsync [command]",
		Short: "Mirror an S3 prefix and a network filesystem mount",
		Long: `mountsync mirrors an object store prefix and a mounted network filesystem.

Every direction is a mirror: entries missing from the source are deleted from the
destination. Use --dry-run to preview what would change.`,
		Version:       version.Detailed(),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, sync.DirectionBidirectional)
		},
	}

	flags := root.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("bucket", "b", "", "object store location, s3://bucket/prefix")
	flags.StringP("path", "p", "", "mount path of the network filesystem")
	flags.StringP("log", "l", config.DefaultLogPath, "directory for daily log files")
	flags.BoolP("debug", "d", false, "enable debug logging")
	flags.BoolP("dry-run", "n", false, "show what would change without changing anything")
	flags.BoolP("quiet", "q", false, "only print errors to the terminal")
	flags.String("lock", config.DefaultLockPath, "lock marker path shared by all invocations")
	flags.String("region", config.DefaultRegion, "object store region")
	flags.String("endpoint", "", "custom S3-compatible endpoint")
	flags.Int("concurrency", config.DefaultConcurrency, "parallel transfers per pass")
	flags.Bool("remount", false, "attempt one remount when the path is not mounted")

	a.bind(root)

	root.AddCommand(
		a.syncCmd(sync.DirectionPush, "Mirror the mount into the object store"),
		a.syncCmd(sync.DirectionPull, "Mirror the object store into the mount"),
		a.syncCmd(sync.DirectionBidirectional, "Pull from the object store, then push back"),
		a.statusCmd(),
		newVersionCmd(),
	)
	return root
}

// bind wires flag > environment > default precedence for every key.
func (a *app) bind(root *cobra.Command) {
	v := a.v
	flags := root.PersistentFlags()

	for _, key := range []string{"bucket", "path", "log", "debug", "dry-run", "quiet", "lock", "region", "endpoint", "concurrency", "remount"} {
		v.BindPFlag(key, flags.Lookup(key))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// names used by existing deployments
	v.BindEnv("bucket", envPrefix+"_BUCKET", "S3_BUCKET")
	v.BindEnv("path", envPrefix+"_PATH", "EFS_PATH")
	v.BindEnv("log-level", envPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	// environment only, never flags
	v.BindEnv("access-key", envPrefix+"_ACCESS_KEY")
	v.BindEnv("secret-key", envPrefix+"_SECRET_KEY")

	v.SetDefault("log", config.DefaultLogPath)
	v.SetDefault("lock", config.DefaultLockPath)
	v.SetDefault("region", config.DefaultRegion)
	v.SetDefault("concurrency", config.DefaultConcurrency)
	v.SetDefault("connect-timeout", config.DefaultConnectTimeout)
	v.SetDefault("read-timeout", config.DefaultReadTimeout)
}

func (a *app) loadConfig() *config.SyncConfig {
	v := a.v
	return &config.SyncConfig{
		ObjectStoreLocation: v.GetString("bucket"),
		MountPath:           v.GetString("path"),
		LogPath:             v.GetString("log"),
		LockPath:            v.GetString("lock"),
		Region:              v.GetString("region"),
		Endpoint:            v.GetString("endpoint"),
		Concurrency:         v.GetInt("concurrency"),
		ConnectTimeout:      v.GetDuration("connect-timeout"),
		ReadTimeout:         v.GetDuration("read-timeout"),
		Debug:               v.GetBool("debug") || isDebugLevel(v.GetString("log-level")),
		Quiet:               v.GetBool("quiet"),
		DryRun:              v.GetBool("dry-run"),
		Remount:             v.GetBool("remount"),
		AccessKey:           v.GetString("access-key"),
		SecretKey:           v.GetString("secret-key"),
	}
}

func isDebugLevel(level string) bool {
	return strings.EqualFold(level, "debug")
}

// setupLogging sends records to the terminal and to today's log file. When the file cannot be
// opened and fileOptional is set, only the terminal receives records.
func (a *app) setupLogging(cfg *config.SyncConfig, stdout io.Writer, fileOptional bool) error {
	termLevel := slog.LevelInfo
	fileLevel := slog.LevelInfo
	if cfg.Debug {
		termLevel, fileLevel = slog.LevelDebug, slog.LevelDebug
	}
	if cfg.Quiet {
		termLevel = slog.LevelError
	}

	handlers := []slog.Handler{
		tint.NewHandler(stdout, &tint.Options{
			Level:      termLevel,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(stdout),
		}),
	}

	dir, err := cfg.LogDir()
	var file *os.File
	if err == nil {
		file, err = runlog.Open(dir, time.Now())
	}
	switch {
	case err == nil:
		a.logFile = file
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: fileLevel}))
	case !fileOptional:
		return fmt.Errorf("log file: %w", err)
	}

	logger := slog.New(runlog.NewMultiHandler(handlers...)).With("run", uuid.NewString(), "host", hostID())
	slog.SetDefault(logger)

	if err != nil {
		slog.Warn("log file unavailable, logging to terminal only", "error", err)
	}
	return nil
}

// hostID tells apart invocations from hosts sharing one lock marker and log directory.
func hostID() string {
	if id, err := machineid.ProtectedID(version.AppName); err == nil {
		return id[:12]
	}
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "unknown"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
