package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gazehq/gaze-sync/livesync"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gaze-sync",
		Short:         "Live view of a local Gaze engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			livesync.InitLogger(viper.GetString("log-dir"))
		},
	}

	flags := root.PersistentFlags()
	flags.String("runtime-file", "", "path to the engine runtime info file")
	flags.Int("port", 0, "engine port (skips runtime file resolution)")
	flags.String("log-dir", "", "directory for rotated log files")
	viper.BindPFlags(flags) //nolint:errcheck
	viper.SetEnvPrefix("GAZE_SYNC")
	viper.AutomaticEnv()

	root.AddCommand(watchCmd(), videosCmd(), librariesCmd(), jobsCmd(), statusCmd())
	return root
}

func sessionOptions() livesync.Options {
	return livesync.Options{
		RuntimePath:      viper.GetString("runtime-file"),
		Port:             viper.GetInt("port"),
		WatchCredentials: true,
	}
}

// newFetcher builds the pull path alone, for one-shot commands that don't
// need the push channel.
func newFetcher() (*livesync.Fetcher, error) {
	resolver, err := livesync.NewResolver(viper.GetString("runtime-file"))
	if err != nil {
		return nil, err
	}
	return livesync.NewFetcher(livesync.NewClient(resolver)), nil
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Connect to the push channel and print events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := sessionOptions()
			opts.OnStatus = func(connected bool) {
				fmt.Printf("--- live updates: %v\n", connected)
			}

			session, err := livesync.NewSession(opts)
			if err != nil {
				return err
			}

			session.Router().AddHandler(func(ev livesync.Envelope) {
				switch ev.Type {
				case livesync.TypeDownloadProgress:
					fmt.Printf("download %-30s %5.1f%%\n", ev.Model, ev.Progress*100)
				case livesync.TypeScanProgress, livesync.TypeScanComplete:
					fmt.Printf("%-14s library=%s found=%d new=%d\n", ev.Type, ev.LibraryID, ev.FilesFound, ev.FilesNew)
				case livesync.TypeJobProgress:
					fmt.Printf("job %s video=%s stage=%s %5.1f%%\n", ev.JobID, ev.VideoID, ev.Stage, ev.Progress*100)
				default:
					fmt.Printf("%-14s %+v\n", ev.Type, ev)
				}
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return session.Run(ctx)
		},
	}
}

func videosCmd() *cobra.Command {
	var libraryID string
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List videos with their processing state",
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			videos, err := fetcher.ListVideos(ctx, libraryID)
			if err != nil {
				return err
			}
			for _, v := range videos {
				fmt.Printf("%-36s %-12s %5.1f%% %s\n", v.VideoID, v.Status, v.Progress*100, v.Filename)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&libraryID, "library", "", "restrict to one library")
	return cmd
}

func librariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "libraries",
		Short: "List libraries",
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			libs, err := fetcher.ListLibraries(ctx)
			if err != nil {
				return err
			}
			for _, l := range libs {
				fmt.Printf("%-36s %4d/%4d indexed  %s\n", l.LibraryID, l.IndexedCount, l.VideoCount, l.DisplayName())
			}
			return nil
		},
	}
}

func jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List active indexing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			jobs, err := fetcher.ListJobs(ctx)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				stage := ""
				if j.CurrentStage != nil {
					stage = *j.CurrentStage
				}
				fmt.Printf("%-36s %-10s %-14s %5.1f%%\n", j.JobID, j.Status, stage, j.Progress*100)
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print engine health",
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			health, err := fetcher.Health(ctx)
			if err != nil {
				return err
			}
			for k, v := range health {
				fmt.Printf("%-24s %v\n", k, v)
			}
			return nil
		},
	}
}
