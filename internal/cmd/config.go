package cmd

import (
	"github.com/spf13/cobra"

	"github.com/turbolytics/historian/internal/config"
)

func newConfigCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Prints the effective configuration after defaults and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(config.NewViper(), configPath)
			if err != nil {
				return err
			}

			bs, err := c.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(bs)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	return cmd
}
