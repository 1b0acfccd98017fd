package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/deployer"
	"github.com/artpar/releaser/internal/shell/store"
)

const (
	FlagConfig     = "config"
	FlagLogLevel   = "log-level"
	FlagMessage    = "message"
	FlagUpdateCron = "update-cron"
	FlagDryRun     = "dry-run"
	FlagLimit      = "limit"
	FlagHost       = "host"
)

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "releaser",
		Short: "Tag and deploy versioned releases to remote hosts",
		Long: `releaser resolves a version request such as "minor" or "rc" against the
  tags of a git repository, publishes the new tag and rolls the release out to
  every host of a target with an atomic symlink cutover.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help", "releaser":
				return nil
			}
			return a.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, FlagConfig, "c", "", "path to config file (default ./"+DefaultConfigFile+" if present)")
	cmd.PersistentFlags().StringVar(&a.logLevel, FlagLogLevel, "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newDeployCommand(a))
	cmd.AddCommand(newResolveCommand(a))
	cmd.AddCommand(newTagsCommand(a))
	cmd.AddCommand(newReleasesCommand(a))
	cmd.AddCommand(newHistoryCommand(a))
	cmd.AddCommand(newTargetsCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newVersionCommand(a))
	return cmd
}

// =============================================================================
// deploy
// =============================================================================

func newDeployCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <target> <version-request>",
		Short: "Deploy a version to every host of a target",
		Long: `Deploy resolves the version request, publishes a new tag when needed and
deploys the release to the target's hosts one after another.

A version request is an existing tag ("1.4.0"), a level ("major", "minor",
"patch"), a pre-release label ("alpha", "beta", "rc"), a level with a label
("minor-rc") or "release" to drop the pre-release of the latest tag.`,
		Example: `  releaser deploy prod 1.4.0
  releaser deploy staging minor-rc --message "feature freeze"
  releaser deploy prod release --update-cron`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, a, args[0], args[1])
		},
	}
	cmd.Flags().StringP(FlagMessage, "m", "", "annotation message of a newly created tag")
	cmd.Flags().Bool(FlagUpdateCron, false, "install the release's crontab.txt on every host")
	cmd.Flags().Bool(FlagDryRun, false, "resolve the version and show the plan without publishing or touching hosts")
	return cmd
}

func runDeploy(cmd *cobra.Command, a *app, targetName, request string) error {
	target, err := a.cfg.Target(targetName)
	if err != nil {
		return fail("deploy", ExitConfigError, err)
	}
	message, _ := cmd.Flags().GetString(FlagMessage)
	updateCron, _ := cmd.Flags().GetBool(FlagUpdateCron)
	dryRun, _ := cmd.Flags().GetBool(FlagDryRun)

	var history *store.SQLiteStore
	if !dryRun {
		history, err = a.openStore()
		if err != nil {
			return err
		}
		if history != nil {
			defer history.Close()
		}
	}

	result, err := a.deployer(history).Deploy(cmd.Context(), deployer.Request{
		Target:         target,
		VersionRequest: request,
		Message:        message,
		UpdateCron:     updateCron,
		DryRun:         dryRun,
	})
	if err != nil {
		if errors.Is(err, release.ErrInvalidHookCommand) {
			return fail("deploy", ExitConfigError, err)
		}
		// Without a tag the failure happened while resolving or publishing.
		if result.Tag == "" {
			return fail("resolve", ExitResolveError, err)
		}
		renderDeploy(a.stdout, target, result)
		return fail("deploy", ExitDeployError, err)
	}

	renderDeploy(a.stdout, target, result)
	return nil
}

func renderDeploy(w io.Writer, target release.DeploymentTarget, result deployer.Result) {
	tag := result.Tag
	if result.Created {
		tag += " (new tag)"
	}
	if result.DryRun {
		layout := target.Layout()
		fmt.Fprintf(w, "would deploy %s to %s\n", tag, target.Name)
		fmt.Fprintf(w, "  release:  %s\n", layout.Release(result.Tag))
		fmt.Fprintf(w, "  cutover:  %s -> %s\n", layout.Current(), layout.ReleaseSource(result.Tag))
		fmt.Fprintf(w, "  env:      %s\n", target.EnvPolicy)
		fmt.Fprintf(w, "  hosts:    %s\n", strings.Join(target.Hosts, ", "))
		return
	}

	fmt.Fprintf(w, "deployed %s to %s\n", tag, target.Name)
	t := newTable(w)
	t.AppendHeader(table.Row{"Host", "Release", "Materialized", "Pruned", "Retention"})
	for _, h := range result.Hosts {
		retention := "ok"
		if h.RetentionErr != nil {
			retention = h.RetentionErr.Error()
		}
		t.AppendRow(table.Row{h.Host, h.ReleasePath, h.Materialized, strings.Join(h.Pruned, " "), retention})
	}
	t.Render()
}

// =============================================================================
// resolve, tags
// =============================================================================

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "resolve <target> <version-request>",
		Short:   "Show the version a request resolves to without publishing it",
		Example: `  releaser resolve prod minor`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.cfg.Target(args[0]); err != nil {
				return fail("resolve", ExitConfigError, err)
			}
			res, err := a.resolver().Preview(cmd.Context(), args[1])
			if err != nil {
				return fail("resolve", ExitResolveError, err)
			}
			if res.Created {
				fmt.Fprintf(a.stdout, "%s (new tag from %s)\n", res.Tag, res.Baseline)
			} else {
				fmt.Fprintln(a.stdout, res.Tag)
			}
			return nil
		},
	}
}

func newTagsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags <target>",
		Short: "List version tags, highest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.cfg.Target(args[0]); err != nil {
				return fail("tags", ExitConfigError, err)
			}
			tags, err := a.resolver().Tags(cmd.Context())
			if err != nil {
				return fail("tags", ExitResolveError, err)
			}
			limit, _ := cmd.Flags().GetInt(FlagLimit)
			if limit > 0 && len(tags) > limit {
				tags = tags[:limit]
			}
			for _, tag := range tags {
				fmt.Fprintln(a.stdout, tag)
			}
			return nil
		},
	}
	cmd.Flags().IntP(FlagLimit, "n", 0, "show at most this many tags (0 = all)")
	return cmd
}

// =============================================================================
// releases, history
// =============================================================================

func newReleasesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "releases <target>",
		Short: "List the release directories on every host of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.cfg.Target(args[0])
			if err != nil {
				return fail("releases", ExitConfigError, err)
			}
			hosts := target.Hosts
			if host, _ := cmd.Flags().GetString(FlagHost); host != "" {
				hosts = []string{host}
			}

			d := a.deployer(nil)
			t := newTable(a.stdout)
			t.AppendHeader(table.Row{"Host", "Version", "Modified", "Live"})
			var failed error
			for _, host := range hosts {
				records, err := d.Releases(cmd.Context(), target, host)
				if err != nil {
					failed = multierr.Append(failed, fmt.Errorf("%s: %w", host, err))
					continue
				}
				for _, r := range records {
					live := ""
					if r.Active {
						live = "*"
					}
					t.AppendRow(table.Row{host, r.Version, r.CreatedAt.Local().Format(time.DateTime), live})
				}
			}
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
			t.Render()

			if failed != nil {
				return fail("releases", ExitDeployError, failed)
			}
			return nil
		},
	}
	cmd.Flags().String(FlagHost, "", "inspect only this host")
	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <target>",
		Short: "Show recorded deploys of a target, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.cfg.Target(args[0])
			if err != nil {
				return fail("history", ExitConfigError, err)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if s == nil {
				return fail("history", ExitConfigError, errors.New("deploy history is disabled (database.dsn is empty)"))
			}
			defer s.Close()

			opts := store.DefaultListOptions()
			opts.Limit, _ = cmd.Flags().GetInt(FlagLimit)
			opts.Host, _ = cmd.Flags().GetString(FlagHost)
			records, err := s.ListDeployRecords(cmd.Context(), target.Name, opts)
			if err != nil {
				return fail("history", ExitDatabaseError, err)
			}

			t := newTable(a.stdout)
			t.AppendHeader(table.Row{"Started", "Host", "Request", "Version", "Status", "Stage", "Error"})
			for _, r := range records {
				t.AppendRow(table.Row{
					r.StartedAt.Local().Format(time.DateTime),
					r.Host, r.Request, r.Version, r.Status, r.Stage, r.Error,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntP(FlagLimit, "n", 20, "show at most this many deploys")
	cmd.Flags().String(FlagHost, "", "show only deploys of this host")
	return cmd
}

// =============================================================================
// targets, version
// =============================================================================

func newTargetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "Print the configured targets with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := a.cfg.DeploymentTargets()
			if err != nil {
				return fail("targets", ExitConfigError, err)
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(targets); err != nil {
				return fail("targets", ExitConfigError, err)
			}
			return enc.Close()
		},
	}
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the releaser version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "releaser %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}
