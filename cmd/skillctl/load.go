package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/presenter"
	"github.com/ipdelete/agent-base-sub000/pkg/skills"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/loader"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type LoadConfig struct {
	JSON  bool
	Watch bool
}

func NewLoadConfig() *LoadConfig {
	return &LoadConfig{}
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the enabled skills and show their status",
	Long: `Load the enabled skills from the bundled, user and extra skill roots and print
one status line per skill directory. Failed skills show the reason.

Examples:
  skillctl load
  skillctl load --enabled all-untrusted
  skillctl load --watch`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLoad(cmd.Context(), cmd.OutOrStdout(), getLoadConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewLoadConfig()
	loadCmd.Flags().Bool("json", defaults.JSON, "Print outcomes as JSON")
	loadCmd.Flags().BoolP("watch", "w", defaults.Watch, "Reload whenever a skill root changes")
}

func getLoadConfigFromFlags(cmd *cobra.Command) *LoadConfig {
	config := NewLoadConfig()
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = v
	}
	if v, err := cmd.Flags().GetBool("watch"); err == nil {
		config.Watch = v
	}
	return config
}

func runLoad(ctx context.Context, w io.Writer, config *LoadConfig) error {
	if err := loadOnce(ctx, w, config); err != nil {
		return err
	}
	if !config.Watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	presenter.Info("watching skill roots for changes, press Ctrl+C to stop")
	return loader.Watch(ctx, skills.Roots(appConfig), loader.DefaultWatchDebounce, func() {
		presenter.Separator()
		if err := loadOnce(ctx, w, config); err != nil {
			logger.G(ctx).WithError(err).Error("reload failed")
		}
	})
}

func loadOnce(ctx context.Context, w io.Writer, config *LoadConfig) error {
	rt, err := skills.Initialize(ctx, appConfig)
	if err != nil {
		return errors.Wrap(err, "failed to load skills")
	}
	if config.JSON {
		return printOutcomesJSON(w, rt.Result.Outcomes)
	}
	printOutcomes(rt.Result.Outcomes)
	presenter.Info(fmt.Sprintf("%d toolsets, %d scripts, %d tools", len(rt.Result.Toolsets), rt.Result.Scripts.Len(), len(rt.Tools)))
	return nil
}

func printOutcomes(outcomes []loader.Outcome) {
	if len(outcomes) == 0 {
		presenter.Info("No skills found")
		return
	}
	for _, o := range outcomes {
		level := presenter.LevelOK
		detail := o.String()
		switch o.Status {
		case loader.StatusFailed:
			level = presenter.LevelFailed
			detail = fmt.Sprintf("%s (%s)", detail, o.Message)
		case loader.StatusLoaded:
			detail = fmt.Sprintf("%s, %d toolsets, %d scripts", detail, o.Toolsets, o.Scripts)
			if o.Manifest != nil {
				if summary := o.Manifest.Summary(); summary != "" {
					detail += " - " + summary
				}
			}
		default:
			level = presenter.LevelSkipped
		}
		presenter.Status(o.Skill, level, detail)
	}
}

type outcomeJSON struct {
	Skill    string `json:"skill"`
	Dir      string `json:"dir"`
	Bundled  bool   `json:"bundled"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
	Version  string `json:"version,omitempty"`
	Toolsets int    `json:"toolsets"`
	Scripts  int    `json:"scripts"`
}

func printOutcomesJSON(w io.Writer, outcomes []loader.Outcome) error {
	rows := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		row := outcomeJSON{
			Skill:    o.Skill,
			Dir:      o.Dir,
			Bundled:  o.Bundled,
			Status:   string(o.Status),
			Reason:   string(o.Reason),
			Message:  o.Message,
			Toolsets: o.Toolsets,
			Scripts:  o.Scripts,
		}
		if o.Manifest != nil {
			row.Version = o.Manifest.Version
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
