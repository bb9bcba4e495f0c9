package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// ErrNotConnected возвращается при вызове API вне Run.
var ErrNotConnected = errors.New("mtproto: клиент не запущен")

// CodePrompt запрашивает код подтверждения входа.
type CodePrompt func(ctx context.Context) (string, error)

// Credentials описывает вход пользовательским аккаунтом.
type Credentials struct {
	APIID    int
	APIHash  string
	Phone    string
	Password string
}

// Client — MTProto клиент пользовательского аккаунта для чтения истории чатов.
type Client struct {
	client *telegram.Client
	creds  Credentials
	prompt CodePrompt
	log    zerolog.Logger

	mu    sync.Mutex
	api   *tg.Client
	peers map[string]peer
}

// NewClient создаёт клиента. prompt может быть nil, если сессия уже авторизована.
func NewClient(creds Credentials, storage telegram.SessionStorage, prompt CodePrompt, log zerolog.Logger) *Client {
	client := telegram.NewClient(creds.APIID, creds.APIHash, telegram.Options{SessionStorage: storage})
	return &Client{
		client: client,
		creds:  creds,
		prompt: prompt,
		log:    log,
		peers:  make(map[string]peer),
	}
}

// Run подключается, при необходимости авторизуется и выполняет f.
// Вызовы HistoryPage допустимы только внутри f.
func (c *Client) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		if err := c.authorize(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		c.api = c.client.API()
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			c.api = nil
			c.mu.Unlock()
		}()
		return f(ctx)
	})
}

func (c *Client) authorize(ctx context.Context) error {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("mtproto: статус авторизации: %w", err)
	}
	if status.Authorized {
		return nil
	}
	if c.creds.Phone == "" || c.prompt == nil {
		return fmt.Errorf("mtproto: сессия не авторизована, выполните memetrack session login")
	}
	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return c.prompt(ctx)
	})
	flow := auth.NewFlow(auth.Constant(c.creds.Phone, c.creds.Password, codeAuth), auth.SendCodeOptions{})
	if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("mtproto: авторизация: %w", err)
	}
	c.log.Info().Msg("mtproto: авторизация выполнена")
	return nil
}

func (c *Client) apiClient() (*tg.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return nil, ErrNotConnected
	}
	return c.api, nil
}
