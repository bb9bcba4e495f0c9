package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Fetch.StopEmpty != 5 || cfg.Fetch.StopLookback != 7 {
		t.Fatalf("ожидали правило 5 из 7, получили %d из %d", cfg.Fetch.StopEmpty, cfg.Fetch.StopLookback)
	}
	if cfg.Classifier.TokenCeiling != 110000 {
		t.Fatalf("ожидали потолок 110000, получили %d", cfg.Classifier.TokenCeiling)
	}
	if cfg.DataDir != "tg" {
		t.Fatalf("ожидали каталог tg, получили %s", cfg.DataDir)
	}
	if cfg.OpenAI.Timeout != 120*time.Second {
		t.Fatalf("ожидали таймаут 120s, получили %s", cfg.OpenAI.Timeout)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("BATCH_STOP_EMPTY", "3")
	t.Setenv("BATCH_STOP_LOOKBACK", "4")
	t.Setenv("PROMPT_VERSION", "v7")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Fetch.StopEmpty != 3 || cfg.Fetch.StopLookback != 4 {
		t.Fatalf("переопределение правила остановки не применилось")
	}
	if cfg.Classifier.PromptVersion != "v7" {
		t.Fatalf("ожидали v7, получили %s", cfg.Classifier.PromptVersion)
	}
}

func TestValidateRejectsInvertedStopRule(t *testing.T) {
	t.Setenv("BATCH_STOP_EMPTY", "8")
	t.Setenv("BATCH_STOP_LOOKBACK", "7")
	if _, err := Parse(); err == nil {
		t.Fatalf("ожидали ошибку для 8 из 7")
	}
}
