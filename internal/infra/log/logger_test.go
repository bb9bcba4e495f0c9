package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerProdIsJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "prod")
	logger.Debug().Msg("скрыто")
	logger.Info().Str("project", "zyn").Msg("видно")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("ожидали одну JSON-строку, получили %q: %v", buf.String(), err)
	}
	if entry["project"] != "zyn" || entry["message"] != "видно" {
		t.Fatalf("неожиданная запись: %v", entry)
	}
}
