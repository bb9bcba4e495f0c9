package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tg-meme-pulse/internal/app"
	"tg-meme-pulse/internal/infra/config"
	applog "tg-meme-pulse/internal/infra/log"
	"tg-meme-pulse/internal/infra/metrics"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:           "memetrack",
	Short:         "Сбор и разметка истории Telegram-чатов мемкоинов",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse()
		if err != nil {
			return fmt.Errorf("конфиг: %w", err)
		}
		logger := applog.NewLogger(cfg.AppEnv)
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		application = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			application.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd, classifyCmd, rollupCmd, priceCmd, runCmd, exportCmd, sessionCmd)
}

func main() {
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ошибка:", err)
		os.Exit(1)
	}
}
