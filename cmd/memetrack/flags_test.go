package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tg-meme-pulse/internal/domain"
)

func TestEachProjectContinuesAfterFailure(t *testing.T) {
	projects := []domain.Project{{Name: "zyn"}, {Name: "spx"}, {Name: "popcat"}}
	var visited []string
	var errOut bytes.Buffer
	err := eachProject(context.Background(), projects, &errOut, func(_ context.Context, p domain.Project) error {
		visited = append(visited, p.Name)
		if p.Name == "spx" {
			return fmt.Errorf("%w: spx", domain.ErrLocked)
		}
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "1 из 3") {
		t.Fatalf("ожидали итоговую ошибку по одному проекту, получили %v", err)
	}
	if strings.Join(visited, ",") != "zyn,spx,popcat" {
		t.Fatalf("обработаны не все проекты: %v", visited)
	}
	if !strings.Contains(errOut.String(), "spx:") {
		t.Fatalf("ошибка проекта не напечатана: %q", errOut.String())
	}
}

func TestEachProjectStopsOnCancel(t *testing.T) {
	projects := []domain.Project{{Name: "zyn"}, {Name: "spx"}}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := eachProject(ctx, projects, &bytes.Buffer{}, func(ctx context.Context, _ domain.Project) error {
		calls++
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
	if calls != 1 {
		t.Fatalf("после отмены обход должен остановиться, вызовов %d", calls)
	}
}

func TestEachProjectAllOK(t *testing.T) {
	err := eachProject(context.Background(), []domain.Project{{Name: "zyn"}}, &bytes.Buffer{}, func(context.Context, domain.Project) error {
		return nil
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
}
