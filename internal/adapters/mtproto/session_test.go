package mtproto

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gotd/td/session"
)

func TestImportSessionTelethonRows(t *testing.T) {
	key := strings.Repeat("ab", 256)
	raw := `[{"dc_id":2,"server_address":"149.154.167.51","port":443,"auth_key":"` + key + `"}]`

	data, format, err := ImportSession([]byte(raw))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if format != FormatTelethonRows {
		t.Fatalf("ожидали %s, получили %s", FormatTelethonRows, format)
	}
	var decoded struct {
		Version int
		Data    session.Data
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("разбор: %v", err)
	}
	if decoded.Version != 1 || decoded.Data.DC != 2 || decoded.Data.Addr != "149.154.167.51:443" || len(decoded.Data.AuthKey) != 256 {
		t.Fatalf("неожиданная сессия: %+v", decoded)
	}

	again, format, err := ImportSession(data)
	if err != nil || format != FormatGotd || string(again) != string(data) {
		t.Fatalf("сессия gotd должна проходить без изменений: %s %v", format, err)
	}
}

func TestImportSessionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "{}", "[]", "not a session", `[{"dc_id":2,"server_address":"h","port":443,"auth_key":"zz"}]`} {
		if _, _, err := ImportSession([]byte(raw)); err == nil {
			t.Fatalf("%q: ожидали ошибку", raw)
		}
	}
}

type fakeSessionRepo struct {
	data map[string][]byte
}

func (r *fakeSessionRepo) LoadMTProtoSession(_ context.Context, name string) ([]byte, error) {
	d, ok := r.data[name]
	if !ok {
		return nil, session.ErrNotFound
	}
	return d, nil
}

func (r *fakeSessionRepo) StoreMTProtoSession(_ context.Context, name string, data []byte) error {
	r.data[name] = data
	return nil
}

func TestSessionStorageSelection(t *testing.T) {
	repo := &fakeSessionRepo{data: map[string][]byte{}}
	storage := NewSessionStorage(repo, "", "ignored.json")
	if err := storage.StoreSession(context.Background(), []byte("x")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if string(repo.data["default"]) != "x" {
		t.Fatalf("ожидали запись в БД под именем default")
	}
	if _, ok := NewSessionStorage(nil, "", "s.json").(*session.FileStorage); !ok {
		t.Fatalf("без БД ожидали файловое хранилище")
	}

	mem := &SessionMemory{}
	if _, err := mem.LoadSession(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("пустая сессия должна давать ErrNotFound, получили %v", err)
	}
}
