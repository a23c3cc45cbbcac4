package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obentoo/nightwatch/internal/common/config"
	"github.com/obentoo/nightwatch/internal/common/gitlab"
	"github.com/obentoo/nightwatch/internal/common/logger"
	"github.com/obentoo/nightwatch/internal/common/output"
	"github.com/obentoo/nightwatch/internal/common/packagist"
	"github.com/obentoo/nightwatch/internal/composer"
	"github.com/obentoo/nightwatch/internal/container"
	"github.com/obentoo/nightwatch/internal/update"
	"github.com/obentoo/nightwatch/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchDryRun   bool
	watchProjects []string
	watchAll      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check projects for dependency updates",
	Long: `Check every configured project for Composer packages with a newer release.

For each project, composer.json and composer.lock are read from GitLab and the
latest stable release of every required package is looked up on Packagist.
When that release satisfies the declared constraint and is newer than the
locked version, composer update runs in a container and the result is pushed
as a merge request.

Examples:
  nightwatch watch
  nightwatch watch --dry-run
  nightwatch watch --project shop --project blog`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchDryRun, "dry-run", "n", false, "Report qualifying updates without triggering them")
	watchCmd.Flags().StringArrayVarP(&watchProjects, "project", "p", nil, "Only check the named project (repeatable)")
	watchCmd.Flags().BoolVarP(&watchAll, "all", "a", false, "List every package in the summary, not only actionable ones")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}
	for _, p := range cfg.Projects {
		logger.AddSecret(p.SourceControl.AccessToken)
	}

	output.Banner(os.Stdout, "Watch")

	containers := container.NewManager(container.WithBinary(cfg.Container.Binary))
	if !watchDryRun {
		if err := containers.CheckAvailable(cmd.Context()); err != nil {
			logger.Error("%v", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := packagist.NewClient(cfg.Packagist.BaseURL, time.Duration(cfg.Packagist.Timeout))
	author := update.Author{Name: cfg.Git.User, Email: cfg.Git.Email}

	w := watch.NewWatcher(cfg, registry, containers, projectFactory(containers, author),
		watch.WithDryRun(watchDryRun),
		watch.WithProjects(watchProjects...),
	)
	report := w.Run(ctx)

	displayWatchReport(os.Stdout, report, watchAll)
}

// projectFactory connects each project to GitLab through one client shared by
// the manifest reader and the updater
func projectFactory(containers update.Containers, author update.Author) watch.ProjectFactory {
	return func(p config.Project) (watch.Source, watch.Dispatcher, error) {
		sc := p.SourceControl
		client := gitlab.NewClient(sc.APIBaseURL, string(sc.ProjectID), sc.AccessToken)
		client.Ref = sc.Ref

		updater := update.NewUpdater(client, containers, author, update.WithLabel(p.Label()))
		return composer.NewRepository(client), updater, nil
	}
}

// displayWatchReport prints a per-project summary of a run. Error text goes
// through the logger's redaction since it may carry a clone URL.
func displayWatchReport(w io.Writer, report *watch.Report, all bool) {
	fmt.Fprintln(w)
	if len(report.Projects) == 0 {
		output.Fprintf(w, output.Warning, "No projects checked\n")
		return
	}

	for _, p := range report.Projects {
		output.Fprintf(w, output.Project, "%s", p.Project.Label())
		output.Fprintf(w, output.Dim, " (%s)\n", p.Runtime)

		if p.Err != nil {
			output.Fprintf(w, output.Error, "  skipped: %s\n", logger.Redact(p.Err.Error()))
			continue
		}

		shown := 0
		for _, r := range p.Results {
			if r.Status == watch.StatusSkipped && !all {
				continue
			}
			shown++
			fmt.Fprintf(w, "  %s %s", output.FormatStatus(string(r.Status)), r.Package)
			switch {
			case r.Latest != "":
				fmt.Fprintf(w, " %s -> %s", r.Locked, r.Latest)
			case r.Locked != "":
				fmt.Fprintf(w, " %s", r.Locked)
			}
			if r.Status == watch.StatusFailed && r.Err != nil {
				output.Fprintf(w, output.Error, ": %s", logger.Redact(r.Err.Error()))
			} else if r.Status == watch.StatusSkipped {
				output.Fprintf(w, output.Dim, " (%s)", r.Reason)
			}
			fmt.Fprintln(w)
		}
		if shown == 0 {
			output.Fprintf(w, output.Success, "  nothing to update (%d packages checked)\n", len(p.Results))
		}
	}

	fmt.Fprintln(w)
	summary := fmt.Sprintf("%d project(s): %d update(s) triggered, %d failed",
		len(report.Projects), report.Count(watch.StatusTriggered), report.Count(watch.StatusFailed))
	if n := report.Count(watch.StatusWouldUpdate); n > 0 {
		summary += fmt.Sprintf(", %d would update", n)
	}
	if n := report.Failed(); n > 0 {
		summary += fmt.Sprintf(", %d project(s) skipped", n)
	}
	output.Fprintf(w, output.Info, "%s\n", summary)

	if report.CleanUpErr != nil {
		output.Fprintf(w, output.Warning, "cleanup: %s\n", logger.Redact(report.CleanUpErr.Error()))
	}
}
