package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tg-meme-pulse/internal/domain"
)

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "первый день YYYY-MM-DD")
	cmd.Flags().String("to", "", "последний день YYYY-MM-DD (по умолчанию сегодня)")
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "p", "", "имя проекта из реестра")
	cmd.Flags().Bool("all", false, "все проекты реестра")
}

// dateRange читает --from/--to. Пустой --to — сегодня, пустой --from — равен --to,
// если allowOpen не разрешает открытую границу.
func dateRange(cmd *cobra.Command, allowOpen bool) (time.Time, time.Time, error) {
	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")
	var from, to time.Time
	var err error
	if rawTo != "" {
		if to, err = domain.ParseDate(rawTo); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
	} else if !allowOpen {
		to = domain.DayStart(time.Now())
	}
	if rawFrom != "" {
		if from, err = domain.ParseDate(rawFrom); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
	} else if !allowOpen {
		from = to
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to раньше --from")
	}
	return from, to, nil
}

// selectedProjects возвращает проекты по --project или --all.
func selectedProjects(cmd *cobra.Command) ([]domain.Project, error) {
	name, _ := cmd.Flags().GetString("project")
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case all && name != "":
		return nil, fmt.Errorf("укажите либо --project, либо --all")
	case all:
		projects := application.Registry.List()
		if len(projects) == 0 {
			return nil, fmt.Errorf("реестр проектов пуст")
		}
		return projects, nil
	case name != "":
		p, err := application.Registry.Get(name)
		if err != nil {
			return nil, err
		}
		return []domain.Project{p}, nil
	}
	return nil, fmt.Errorf("укажите --project или --all")
}

// eachProject выполняет fn для каждого проекта. Ошибка проекта печатается в errOut
// и не останавливает остальные; прерывает обход только отмена контекста.
func eachProject(ctx context.Context, projects []domain.Project, errOut io.Writer, fn func(ctx context.Context, p domain.Project) error) error {
	failed := 0
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, p); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failed++
			fmt.Fprintf(errOut, "%s: %v\n", p.Name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("с ошибкой завершились %d из %d проектов", failed, len(projects))
	}
	return nil
}
