package projects

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tg-meme-pulse/internal/domain"
)

const sample = `
zyn:
  source: "@zynchat"
  chain: ethereum
  contract_address: "0xac0f66379a6d7801d7726d5a943356a172549adb"
  coingecko_id: zyn
pollen:
  source: https://t.me/pollenfuture2023
  healthy: false
`

func TestParseRegistry(t *testing.T) {
	reg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, err := reg.Get("ZYN")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := domain.Project{
		Name:            "zyn",
		Source:          "@zynchat",
		Chain:           "ethereum",
		ContractAddress: "0xac0f66379a6d7801d7726d5a943356a172549adb",
		CoinGeckoID:     "zyn",
		Healthy:         true,
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("проект отличается (-want +got):\n%s", d)
	}
	list := reg.List()
	if len(list) != 2 || list[0].Name != "pollen" || list[0].Healthy {
		t.Fatalf("неожиданный список: %+v", list)
	}
}

func TestGetUnknownProject(t *testing.T) {
	reg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := reg.Get("spx"); !errors.Is(err, ErrUnknownProject) {
		t.Fatalf("ожидали ErrUnknownProject, получили %v", err)
	}
}

func TestParseRejectsUnknownFieldsAndMissingSource(t *testing.T) {
	if _, err := Parse([]byte("zyn:\n  source: x\n  api_key: y\n")); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного поля")
	}
	if _, err := Parse([]byte("zyn:\n  chain: base\n")); err == nil {
		t.Fatalf("ожидали ошибку без source")
	}
}
