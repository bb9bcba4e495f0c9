package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"tg-meme-pulse/internal/domain"
)

// SheetName — лист с дневными значениями.
const SheetName = "daily"

// Header возвращает заголовок таблицы для набора эмоциональных метрик.
func Header(metricNames []string) []string {
	head := []string{"date", "message_count", "unique_user_count"}
	head = append(head, metricNames...)
	return append(head, "open", "high", "low", "close", "catchphrase", "community_theme")
}

// WriteXLSX пишет свёртку проекта и цены одной таблицей: строка на каждую дату
// свёртки. Отсутствующие значения остаются пустыми ячейками.
func WriteXLSX(w io.Writer, doc domain.RollupDocument, prices domain.PriceSeries, metricNames []string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("лист: %w", err)
	}
	header := Header(metricNames)
	if err := setRow(f, 1, toCells(header)); err != nil {
		return err
	}

	dates := make([]string, 0, len(doc.DateData))
	for date := range doc.DateData {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for i, date := range dates {
		day := doc.DateData[date]
		row := make([]interface{}, 0, len(header))
		row = append(row, date, day.UserStats.MessageCount, day.UserStats.UniqueUserCount)
		for _, name := range metricNames {
			if m, ok := day.Metrics.EmotionalMetrics[name]; ok && m.Intensity != nil {
				row = append(row, *m.Intensity)
			} else {
				row = append(row, nil)
			}
		}
		if c, ok := prices[date]; ok {
			row = append(row, c.Open, c.High, c.Low, c.Close)
		} else {
			row = append(row, nil, nil, nil, nil)
		}
		row = append(row, day.Metrics.Catchphrase, day.Metrics.CommunityTheme)
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("закрепление заголовка: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("запись xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, n int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("строка %d: %w", n, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
