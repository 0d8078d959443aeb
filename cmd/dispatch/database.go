package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Database management commands",
}

var databaseInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Run migrations and seed default records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := connect(); err != nil {
			return err
		}
		log.Println("Database initialized")
		return database.Close()
	},
}

func init() {
	databaseCmd.AddCommand(databaseInitCmd)
}
