package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/arzzra/astproxy/internal/config"
	"github.com/arzzra/astproxy/internal/logging"
)

// app общее состояние подкоманд
type app struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "astproxy",
		Short: "Asterisk manager interface proxy",
		Long: `astproxy держит постоянное соединение с портом интерфейса менеджера АТС,
выполняет типизированные команды и раздает незапрошенные события подписчикам.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "path to .env file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(a),
		newExecCmd(a),
		newVersionCmd(),
	)
	return root
}

// load читает .env, конфигурацию и создает логгер
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	return nil
}
