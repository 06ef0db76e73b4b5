package harvest

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal/config"
)

func NewCommand() *cobra.Command {
	var configPath string
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Archives query history newer than the last checkpoint for every work group.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}

			logger, err := config.NewLogger(c.Global.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync()
			l := logger.Named("historian.harvest")

			h, err := config.InitializeHarvester(ctx, c, l)
			if err != nil {
				return err
			}

			boundaries, runErr := h.Run(ctx)
			for wg, id := range boundaries {
				l.Info("new boundary",
					zap.String("work_group", wg),
					zap.String("last_query_execution_id", id),
				)
			}

			if cat := h.Catalog(); cat != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(cat); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to config file")
	flags.String("archive-uri", "", "Archive destination, e.g. s3://bucket/prefix (required)")
	flags.String("state-uri", "", "Checkpoint object, e.g. s3://bucket/checkpoint.json. Empty disables checkpointing")
	flags.Int("flush-threshold", 0, "Records per archive object")
	flags.Int("parallelism", 0, "Work groups harvested at once")
	flags.StringSlice("work-group", nil, "Only harvest these work groups")

	v.BindPFlag("harvester.archive_uri", flags.Lookup("archive-uri"))
	v.BindPFlag("harvester.state_uri", flags.Lookup("state-uri"))
	v.BindPFlag("harvester.flush_threshold", flags.Lookup("flush-threshold"))
	v.BindPFlag("harvester.parallelism", flags.Lookup("parallelism"))
	v.BindPFlag("harvester.work_groups", flags.Lookup("work-group"))

	return cmd
}
