package cmd

import (
	"github.com/spf13/cobra"

	"taxiflow/fetcher"
	"taxiflow/logger"
)

var fetchFrom, fetchTo string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download monthly trip files into the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		months := cfg.Fetcher.Months
		if fetchFrom != "" {
			months.From, months.To = fetchFrom, fetchTo
		}
		labels, err := months.Months()
		if err != nil {
			return err
		}

		res, err := fetcher.NewFetcher(cfg.Fetcher).Fetch(ctx, kinds, labels)
		if err != nil {
			return err
		}
		for _, f := range res.Failed {
			logger.GetLogger().WithComponent("fetch").WithFields(logger.Fields{"url": f.URL}).WithError(f.Err).Error("file not downloaded")
		}
		return res.Err()
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "First month to fetch (YYYY-MM), overrides fetcher.months")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "Last month to fetch (YYYY-MM), defaults to --from")
}
