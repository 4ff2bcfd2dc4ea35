package cmd

import (
	"context"

	"github.com/AzielCF/az-publish/core/database"
	"github.com/AzielCF/az-publish/publishing/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the publishing tables and exit",
	Run:   migrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(cmd *cobra.Command, _ []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logrus.Fatalln("[CONFIG] ", err.Error())
	}

	logrus.Infof("[MIGRATION] Migrating %s database...", cfg.Database.Driver)
	db, err := database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalln("[MIGRATION] ", err.Error())
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := repository.Migrate(context.Background(), db); err != nil {
		logrus.Fatalln("[MIGRATION] Failed: ", err.Error())
	}
	logrus.Info("[MIGRATION] Publishing tables are up to date.")
}
