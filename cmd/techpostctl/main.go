// Command techpostctl is the operator tool for TechPost accounts.
//
//	techpostctl user show ana@example.com
//	techpostctl vip grant ana@example.com
//	techpostctl credits set ana@example.com 10
//	techpostctl sessions prune
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/credentials"
	"github.com/PortNumber53/techpost-ai/internal/logging"
)

type app struct {
	getenv func(string) string
	openDB func(driverName, dataSourceName string) (*sql.DB, error)
	logger *zap.Logger

	db *sql.DB
}

func main() {
	_ = godotenv.Load()
	a := &app{getenv: os.Getenv, openDB: sql.Open}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "techpostctl",
		Short:         "Manage TechPost users, credits and sessions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect(logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newUserCmd(a), newVIPCmd(a), newCreditsCmd(a), newSessionsCmd(a))
	return root
}

func (a *app) connect(logLevel string) error {
	if a.logger == nil {
		l, err := logging.New(logLevel)
		if err != nil {
			return err
		}
		a.logger = l
	}
	if a.db != nil {
		return nil
	}
	dbURL := a.getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	db, err := a.openDB("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) accounts() *credentials.Store {
	return credentials.NewStore(a.db, credentials.Options{Logger: a.logger})
}
