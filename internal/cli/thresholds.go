package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) thresholdsCmd() *cobra.Command {
	var limits thresholdFlags

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Print the effective thresholds as YAML",
		Long: `Prints the limits analyze would apply after the config file,
PERFGATE_* environment variables and flags have been layered on the defaults.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolveConfig()
			if err != nil {
				return err
			}
			if err := limits.apply(cmd, cfg); err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg.ThresholdSet())
			if err != nil {
				return fmt.Errorf("failed to encode thresholds: %w", err)
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}

	limits.register(cmd)
	return cmd
}
