package main

import (
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Netflix/dispatch-sub003/internal/config"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/plugins/slackchat"
)

var rootCmd = &cobra.Command{
	Use:           "dispatch",
	Short:         "Incident and case response orchestration server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(databaseCmd)
	rootCmd.AddCommand(signalsCmd)
}

// connect loads configuration and opens the database, running migrations
// and seeding defaults so every command starts from a usable schema.
func connect() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		return nil, nil, err
	}
	if err := database.AutoMigrate(); err != nil {
		return nil, nil, err
	}
	if err := database.InitializeDefaults(); err != nil {
		return nil, nil, err
	}
	return cfg, database.GetDB(), nil
}

// newRegistry builds the plugin registry with every bundled vendor
// installed. Which vendor actually serves a project is decided by its
// enabled plugin instance rows, not by registration order.
func newRegistry(db *gorm.DB) *plugins.Registry {
	registry := plugins.NewRegistry(db)
	registry.Register(plugins.CapabilityChat, "slack", slackchat.New)
	log.Printf("Plugin registry initialized (chat vendors: %v)",
		registry.RegisteredSlugs(plugins.CapabilityChat))
	return registry
}
