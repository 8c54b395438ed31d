// Package main is the entry point for the cronr CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/flemzord/cronr/internal/config"
	"github.com/flemzord/cronr/internal/control"
	"github.com/flemzord/cronr/internal/job"
	"github.com/flemzord/cronr/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newController builds the controller for a data directory. Tests replace it.
var newController = func(dataDir string, logger *slog.Logger) *control.Controller {
	return control.New(control.Options{DataDir: dataDir, Version: version, Logger: logger})
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cronr",
		Short:         "A single-host cron replacement",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("cronr {{.Version}}\n")
	root.PersistentFlags().String("data-dir", "", "Data directory (default $"+config.DataDirEnv+" or ~/.cronr)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		createCmd(),
		listCmd(),
		stopCmd(),
		pauseCmd(),
		resumeCmd(),
		historyCmd(),
		statusCmd(),
		versionCmd(),
		startCmd(),
		daemonStopCmd(),
		daemonInternalCmd(),
		serviceCmd(),
	)
	return root
}

// env resolves the data directory and CLI logger from the global flags.
func env(cmd *cobra.Command) (string, *slog.Logger, error) {
	flag, _ := cmd.Flags().GetString("data-dir")
	dir, err := app.ResolveDataDir(flag)
	if err != nil {
		return "", nil, err
	}

	level := slog.LevelWarn
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		if level, err = config.ParseLevel(s); err != nil {
			return "", nil, err
		}
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return dir, logger, nil
}

func controller(cmd *cobra.Command) (*control.Controller, error) {
	dir, logger, err := env(cmd)
	if err != nil {
		return nil, err
	}
	return newController(dir, logger), nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cronr %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <command> <schedule>",
		Short: "Create a scheduled job",
		Long: `Create a scheduled job. The schedule has six fields including seconds,
for example "0 */5 * * * *" runs every five minutes. Descriptors such as
@hourly are accepted. Without arguments an interactive form is shown.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var command, schedule string
			switch len(args) {
			case 2:
				command, schedule = args[0], args[1]
			default:
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("create requires <command> and <schedule>")
				}
				if len(args) == 1 {
					command = args[0]
				}
				var err error
				if command, schedule, err = promptJob(command); err != nil {
					return err
				}
			}

			c, err := controller(cmd)
			if err != nil {
				return err
			}
			id, started, err := c.Create(command, schedule)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added job %d with schedule '%s'\n", id, schedule)
			fmt.Fprintf(out, "Command: %s\n", command)
			if started {
				fmt.Fprintln(out, "Started daemon for job execution")
			}
			return nil
		},
	}
}

// promptJob asks for the missing job fields with an interactive form.
func promptJob(command string) (string, string, error) {
	var schedule string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Command").
				Placeholder("backup.sh --full").
				Value(&command).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("command is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Schedule").
				Description("sec min hour day month weekday, or @hourly / @daily").
				Placeholder("0 0 * * * *").
				Value(&schedule).
				Validate(func(s string) error {
					_, err := job.ParseSchedule(s)
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return command, schedule, nil
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List scheduled jobs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			rows, err := c.List()
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cron jobs found.")
				return nil
			}
			return printRows(cmd.OutOrStdout(), rows)
		},
	}
}

func printRows(out io.Writer, rows []control.Row) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCHEDULE\tSTATE\tNEXT RUN\tCOMMAND")
	for _, r := range rows {
		state := "active"
		if !r.Enabled {
			state = "paused"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Schedule, state, formatTime(r.NextRun), r.Command)
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			j, err := c.Stop(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped job %d with schedule '%s'\nCommand: %s\n", id, j.Schedule, j.Command)
			return nil
		},
	}
}

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Disable a job without removing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			if _, err := c.Pause(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paused job %d\n", id)
			return nil
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Re-enable a paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			j, err := c.Resume(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed job %d, next run %s\n", id, formatTime(j.NextRun))
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show recent runs of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("limit")
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			runs, err := c.History(cmd.Context(), id, n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs recorded for job %d.\n", id)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tDURATION\tEXIT\tERROR")
			for _, r := range runs {
				errText := r.Error
				if errText == "" {
					errText = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration().Round(time.Millisecond),
					r.ExitCode,
					errText,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "Number of runs to show")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show version, job count and daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			st, err := c.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cronr version: %s\n", st.Version)
			fmt.Fprintf(out, "Active jobs: %d\n", st.ActiveJobs)
			if st.DaemonRunning {
				fmt.Fprintln(out, "Daemon is running.")
			} else {
				fmt.Fprintln(out, "Daemon is not running.")
			}
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "start",
		Short:  "Start the daemon",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			started, err := c.StartDaemon()
			if err != nil {
				return err
			}
			if started {
				fmt.Fprintln(cmd.OutOrStdout(), "Started daemon.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is already running.")
			}
			return nil
		},
	}
}

func daemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "daemon-stop",
		Short:  "Stop the daemon",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			stopped, err := c.StopDaemon()
			if err != nil {
				return err
			}
			if stopped {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped daemon.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running.")
			}
			return nil
		},
	}
}

func runParams(cmd *cobra.Command) (app.RunParams, error) {
	flag, _ := cmd.Flags().GetString("data-dir")
	dir, err := app.ResolveDataDir(flag)
	if err != nil {
		return app.RunParams{}, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	return app.RunParams{
		DataDir:  dir,
		LogLevel: level,
		Version:  version,
		Commit:   commit,
		Date:     date,
	}, nil
}

func daemonInternalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "daemon-internal",
		Short:  "Run the scheduler in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			if asService, _ := cmd.Flags().GetBool("service"); asService {
				svc, err := app.NewService(params)
				if err != nil {
					return err
				}
				return svc.Run()
			}
			return app.RunDaemon(context.Background(), params)
		},
	}
	cmd.Flags().Bool("service", false, "Run under the OS service manager")
	return cmd
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the startup registration of the daemon",
	}
	for _, action := range []struct{ name, short, done string }{
		{"install", "Register the daemon to start at login", "Installed"},
		{"uninstall", "Remove the startup registration", "Uninstalled"},
		{"start", "Start the registered service", "Started"},
		{"stop", "Stop the registered service", "Stopped"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				params, err := runParams(cmd)
				if err != nil {
					return err
				}
				if err := app.ServiceControl(params, action.name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s service %s.\n", action.done, app.ServiceName)
				return nil
			},
		})
	}
	return cmd
}
