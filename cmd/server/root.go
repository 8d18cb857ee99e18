package main

import (
	"fmt"
	"os"

	"whatsapp-flowbot/internal/config"
	"whatsapp-flowbot/internal/database"
	"whatsapp-flowbot/internal/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "flowbot",
	Short: "WhatsApp chatbot flow engine",
	Long:  `flowbot receives WhatsApp webhooks, runs published chatbot flows and answers the rest with automation rules.`,
}

// Execute runs the command named on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, installs the logger and opens the database.
func setup() (*config.Config, *gorm.DB, error) {
	cfg := config.LoadConfig()
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}
