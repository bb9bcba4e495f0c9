package mtproto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

// ErrUnsupportedSession возвращается для нераспознанного формата сессии.
var ErrUnsupportedSession = errors.New("неподдерживаемый формат MTProto-сессии")

// SessionFormat — исходный формат импортированной сессии.
type SessionFormat string

const (
	FormatGotd            SessionFormat = "gotd"
	FormatTelethonString  SessionFormat = "telethon-string"
	FormatTelethonRows    SessionFormat = "telethon-json"
	FormatTelethonAccount SessionFormat = "telethon-account"
)

// ImportSession приводит сессию Telethon (строка, выгрузка таблицы sessions
// или JSON аккаунта с extra_params) к формату хранилища gotd.
func ImportSession(raw []byte) ([]byte, SessionFormat, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", fmt.Errorf("%w: пустые данные", ErrUnsupportedSession)
	}

	var probe struct {
		Version     int             `json:"Version"`
		ExtraParams string          `json:"extra_params"`
		Data        json.RawMessage `json:"Data"`
	}
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &probe) == nil {
		switch {
		case probe.Version != 0 && len(probe.Data) > 0:
			return append([]byte(nil), trimmed...), FormatGotd, nil
		case probe.ExtraParams != "":
			data, err := fromTelethonString(probe.ExtraParams)
			return data, FormatTelethonAccount, err
		}
		return nil, "", ErrUnsupportedSession
	}
	if trimmed[0] == '[' {
		data, err := fromTelethonRows(trimmed)
		return data, FormatTelethonRows, err
	}
	data, err := fromTelethonString(string(trimmed))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedSession, err)
	}
	return data, FormatTelethonString, nil
}

type telethonRow struct {
	DCID          int    `json:"dc_id"`
	ServerAddress string `json:"server_address"`
	Port          int    `json:"port"`
	AuthKey       string `json:"auth_key"`
}

func fromTelethonRows(raw []byte) ([]byte, error) {
	var rows []telethonRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSession, err)
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		key, err := parseAuthKey(row.AuthKey)
		if err != nil {
			return nil, err
		}
		return encodeSession(sessionData(row.DCID, row.ServerAddress, row.Port, key))
	}
	return nil, fmt.Errorf("%w: нет строк с auth_key", ErrUnsupportedSession)
}

func fromTelethonString(s string) ([]byte, error) {
	s = strings.Trim(strings.TrimSpace(s), "\"'")
	data, err := session.TelethonSession(s)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if len(data.Config.DCOptions) == 0 && data.Addr != "" {
		if host, port, err := net.SplitHostPort(data.Addr); err == nil {
			if p, err := strconv.Atoi(port); err == nil {
				data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: p}}
			}
		}
	}
	return encodeSession(*data)
}

func parseAuthKey(hexKey string) (crypto.Key, error) {
	var key crypto.Key
	raw, err := hex.DecodeString(strings.Trim(strings.TrimSpace(hexKey), "\"'"))
	if err != nil {
		return key, fmt.Errorf("auth_key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("auth_key: длина %d байт, ожидали %d", len(raw), len(key))
	}
	copy(key[:], raw)
	return key, nil
}

func sessionData(dc int, host string, port int, key crypto.Key) session.Data {
	id := key.WithID().ID
	return session.Data{
		Config: session.Config{
			ThisDC:    dc,
			DCOptions: []tg.DCOption{{ID: dc, IPAddress: host, Port: port}},
		},
		DC:        dc,
		Addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		AuthKey:   append([]byte(nil), key[:]...),
		AuthKeyID: append([]byte(nil), id[:]...),
	}
}

// encodeSession повторяет формат session.Loader: {"Version":1,"Data":{...}}.
func encodeSession(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}
