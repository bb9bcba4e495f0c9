package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tg-meme-pulse/internal/adapters/mtproto"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Управление MTProto-сессией",
}

var sessionImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Импортировать сессию Telethon или gotd",
	Long: `Конвертирует строковую или JSON-сессию Telethon в формат gotd и сохраняет
её в MTPROTO_SESSION_FILE (или в Postgres, если задан PG_DSN).

Пример:
  memetrack session import --file telethon_session.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return fmt.Errorf("--file обязателен")
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("чтение сессии: %w", err)
		}
		data, format, err := mtproto.ImportSession(raw)
		if err != nil {
			return err
		}
		if err := application.SessionStorage().StoreSession(cmd.Context(), data); err != nil {
			return fmt.Errorf("сохранение сессии: %w", err)
		}
		fmt.Printf("сессия импортирована (%s)\n", format)
		return nil
	},
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Войти по номеру TG_PHONE и сохранить сессию",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := application.MTProto(stdinCode)
		return client.Run(cmd.Context(), func(ctx context.Context) error {
			fmt.Println("сессия авторизована")
			return nil
		})
	},
}

func init() {
	sessionImportCmd.Flags().String("file", "", "файл сессии")
	sessionCmd.AddCommand(sessionImportCmd, sessionLoginCmd)
}

// stdinCode читает код подтверждения из терминала.
func stdinCode(ctx context.Context) (string, error) {
	fmt.Print("код из Telegram: ")
	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.code, r.err
	}
}
