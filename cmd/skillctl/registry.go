package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ipdelete/agent-base-sub000/pkg/presenter"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/registry"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and edit the skill registry",
	Long:  `List installed skills and record trust and pinned revisions in the registry document.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entries",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		entries := reg.List()
		if len(entries) == 0 {
			presenter.Info("No skills registered")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			source, revision := "bundled", ""
			if e.Source != nil {
				source = e.Source.URL
				revision = e.Source.PinnedRevision
			}
			rows = append(rows, []string{
				e.NameCanonical,
				strconv.FormatBool(e.Trusted),
				source,
				revision,
				e.InstalledAt.Format(time.RFC3339),
				e.InstalledPath,
			})
		}
		presenter.Table([]string{"NAME", "TRUSTED", "SOURCE", "REVISION", "INSTALLED", "PATH"}, rows)
		return nil
	},
}

type TrustConfig struct {
	Yes bool
}

var registryTrustCmd = &cobra.Command{
	Use:   "trust <skill>",
	Short: "Mark a skill as trusted so it loads under \"all\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := &TrustConfig{}
		if v, err := cmd.Flags().GetBool("yes"); err == nil {
			config.Yes = v
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		entry, ok := reg.Get(args[0])
		if !ok {
			return errors.Errorf("skill %q is not registered", args[0])
		}

		origin := "bundled"
		if entry.Source != nil {
			origin = entry.Source.URL
		}
		if !config.Yes && !security.ConfirmUntrustedSource(entry.NameCanonical, origin) {
			presenter.Warning("Not trusted")
			return nil
		}
		if err := reg.SetTrusted(entry.NameCanonical, true); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Trusted skill '%s'", entry.NameCanonical))
		return nil
	},
}

var registryUntrustCmd = &cobra.Command{
	Use:   "untrust <skill>",
	Short: "Clear a skill's trusted flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		if err := reg.SetTrusted(args[0], false); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Skill '%s' is no longer trusted", args[0]))
		return nil
	},
}

var registryPinCmd = &cobra.Command{
	Use:   "pin <skill> <revision>",
	Short: "Record the pinned revision of an installed skill",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		if err := reg.UpdatePinnedRevision(args[0], args[1]); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Pinned '%s' to %s", args[0], args[1]))
		return nil
	},
}

var registryRemoveCmd = &cobra.Command{
	Use:   "remove <skill>",
	Short: "Remove a skill's registry entry",
	Long:  `Remove a skill's registry entry. Files on disk are left untouched.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		if err := reg.Unregister(args[0]); err != nil {
			if registry.KindOf(err) == registry.KindNotFound {
				presenter.Warning(fmt.Sprintf("Skill '%s' is not registered", args[0]))
				return nil
			}
			return err
		}
		presenter.Success(fmt.Sprintf("Removed '%s' from the registry", args[0]))
		return nil
	},
}

func init() {
	registryTrustCmd.Flags().BoolP("yes", "y", false, "Trust without asking for confirmation")

	registryCmd.AddCommand(withTracing(registryListCmd))
	registryCmd.AddCommand(withTracing(registryTrustCmd))
	registryCmd.AddCommand(withTracing(registryUntrustCmd))
	registryCmd.AddCommand(withTracing(registryPinCmd))
	registryCmd.AddCommand(withTracing(registryRemoveCmd))
}

func openRegistry() (*registry.Registry, error) {
	reg, err := registry.Open(appConfig.Skills.RegistryPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open skill registry")
	}
	return reg, nil
}
