/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/biblio-hub/apiserver/config"
	"github.com/biblio-hub/apiserver/internal/db"
	"github.com/biblio-hub/apiserver/internal/server"
	"github.com/biblio-hub/apiserver/internal/stats"
	"github.com/biblio-hub/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// statsCmd computes one dashboard snapshot and prints it as JSON.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute a dashboard statistics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			_ = dbConn.Close()
		}()

		userRepo := store.NewUserRepository(dbConn)
		bookRepo := store.NewBookRepository(dbConn)
		loanRepo := store.NewLoanRepository(dbConn)

		sources := server.BuildSources(cfg, userRepo, bookRepo, loanRepo)
		statsService := stats.NewService(sources, zap.NewNop())

		snapshot, err := statsService.Compute(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to compute snapshot: %w", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snapshot)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
