package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ipdelete/agent-base-sub000/pkg/presenter"
	"github.com/ipdelete/agent-base-sub000/pkg/skills"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/sandbox"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts [skill]",
	Short: "List the scripts of loaded skills",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sb, err := newSandbox(cmd.Context())
		if err != nil {
			return err
		}
		skill := ""
		if len(args) == 1 {
			skill = args[0]
		}
		res := sb.ListScripts(cmd.Context(), skill)
		if err := resultError(res); err != nil {
			return err
		}

		var rows [][]string
		for _, l := range res.Skills {
			for _, sc := range l.Scripts {
				rows = append(rows, []string{l.Skill, sc.Name, sc.Path})
			}
		}
		if len(rows) == 0 {
			presenter.Info("No scripts found")
			return nil
		}
		presenter.Table([]string{"SKILL", "SCRIPT", "PATH"}, rows)
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <skill> <script>",
	Short: "Show a script's usage",
	Long:  `Run a skill script with --help inside the sandbox and print its usage text.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sb, err := newSandbox(cmd.Context())
		if err != nil {
			return err
		}
		res := sb.DescribeScript(cmd.Context(), args[0], args[1])
		if err := resultError(res); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), res.Output)
		return nil
	},
}

type RunConfig struct {
	JSON bool
	Env  []string
	Raw  bool
}

func NewRunConfig() *RunConfig {
	return &RunConfig{}
}

var runCmd = &cobra.Command{
	Use:   "run <skill> <script> [-- args...]",
	Short: "Run a skill script in the sandbox",
	Long: `Run a skill script with the same limits the agent gets: a literal argument
list, a hard timeout, an output cap and a filtered environment.

Examples:
  skillctl run hello-extended advanced_greeting -- --language fr Ada
  skillctl run hello-extended advanced_greeting --json -- --json Ada
  skillctl run demo status --env DEMO_TOKEN=abc`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getRunConfigFromFlags(cmd)
		sb, err := newSandbox(cmd.Context())
		if err != nil {
			return err
		}

		env, err := parseEnvPairs(config.Env)
		if err != nil {
			return err
		}
		res := sb.RunScript(cmd.Context(), sandbox.RunRequest{
			Skill:    args[0],
			Script:   args[1],
			Args:     args[2:],
			WantJSON: config.JSON,
			Env:      env,
		})
		return printRunResult(cmd.OutOrStdout(), res, config.Raw)
	},
}

func init() {
	defaults := NewRunConfig()
	runCmd.Flags().Bool("json", defaults.JSON, "Parse the script's output as JSON")
	runCmd.Flags().StringArray("env", defaults.Env, "Pass NAME=VALUE to the script (must be allowed by the skill's permissions.env)")
	runCmd.Flags().Bool("raw", defaults.Raw, "Print the full sandbox result as JSON")
}

func getRunConfigFromFlags(cmd *cobra.Command) *RunConfig {
	config := NewRunConfig()
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = v
	}
	if v, err := cmd.Flags().GetStringArray("env"); err == nil {
		config.Env = v
	}
	if v, err := cmd.Flags().GetBool("raw"); err == nil {
		config.Raw = v
	}
	return config
}

func newSandbox(ctx context.Context) (*sandbox.Sandbox, error) {
	rt, err := skills.Initialize(ctx, appConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load skills")
	}
	for _, o := range rt.Result.Failed() {
		presenter.Status(o.Skill, presenter.LevelFailed, o.String())
	}
	return rt.Sandbox, nil
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, errors.Errorf("invalid --env value %q, expected NAME=VALUE", pair)
		}
		env[name] = value
	}
	return env, nil
}

func resultError(res *sandbox.Result) error {
	if res.Success {
		return nil
	}
	if res.StderrTail != "" {
		return errors.Errorf("%s: %s\n%s", res.Error, res.Message, strings.TrimRight(res.StderrTail, "\n"))
	}
	return errors.Errorf("%s: %s", res.Error, res.Message)
}

func printRunResult(w io.Writer, res *sandbox.Result, raw bool) error {
	if raw {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		return resultError(res)
	}
	if err := resultError(res); err != nil {
		if res.Output != "" {
			fmt.Fprintln(w, res.Output)
		}
		return err
	}

	if res.Result != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(w, res.Output)
	}
	presenter.Success(res.Summary)
	return nil
}
