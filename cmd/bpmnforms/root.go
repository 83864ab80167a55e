package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/bpmnforms/internal/logging"
	"github.com/rendis/bpmnforms/internal/store"
)

// app carries the resolved configuration and logger into every command.
type app struct {
	settings string
	cfg      Config
	logger   *slog.Logger

	dbFlag       string
	logLevelFlag string
	logJSONFlag  bool
}

func newRootCmd() *cobra.Command {
	a := &app{settings: settingsPath()}

	root := &cobra.Command{
		Use:   "bpmnforms",
		Short: "Generate Camunda forms and routing for BPMN processes",
		Long: `bpmnforms reads a BPMN process, generates one Camunda form per start
event, user task and call activity, and writes the routing expressions that
let each form decide where the process goes next.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.settings, "config", a.settings, "settings file")
	flags.StringVar(&a.dbFlag, "db", "", "database path (overrides settings)")
	flags.StringVar(&a.logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSONFlag, "log-json", false, "write JSON log records")

	root.AddCommand(
		newGenerateCmd(a),
		newVerifyCmd(a),
		newDiagramCmd(a),
		newSimulateCmd(a),
		newServeCmd(a),
		newCatalogCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.settings)
	if err != nil {
		return err
	}
	if a.dbFlag != "" {
		cfg.DBPath = a.dbFlag
	}
	if a.logLevelFlag != "" {
		cfg.LogLevel = a.logLevelFlag
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = a.logJSONFlag
	}
	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	return nil
}

// openStore opens and migrates the configured database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	dsn := a.cfg.DBPath
	if !strings.Contains(dsn, ":") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = "file:" + dsn
	}
	s, err := store.NewLibSQLStore(dsn)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}
