package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Claim due scheduled posts once and publish them",
	Long: `Runs a single sweep over scheduled content, the same one the rest server
runs on its interval, and waits for the resulting publish jobs to finish.`,
	Run: sweepOnce,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func sweepOnce(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logrus.Fatalln("[CONFIG] ", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newContainer(ctx, cfg)
	if err != nil {
		logrus.Fatalln("[APP] Failed to initialize: ", err.Error())
	}
	defer c.Close()

	n, err := c.sweeper.Sweep(ctx)
	if err != nil {
		logrus.WithError(err).Error("[SWEEP] Sweep failed")
		return
	}
	logrus.Infof("[SWEEP] Claimed %d posts", n)
}
