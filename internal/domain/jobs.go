package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Direction задаёт порядок обхода диапазона дат.
type Direction string

const (
	// DirectionForward — хронологическая загрузка.
	DirectionForward Direction = "forward"
	// DirectionBackward — догрузка истории в прошлое.
	DirectionBackward Direction = "backward"
)

// ParseDirection разбирает направление обхода.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionForward, "":
		return DirectionForward, nil
	case DirectionBackward:
		return DirectionBackward, nil
	}
	return "", fmt.Errorf("неизвестное направление %q", raw)
}

// Stage — этап обработки проекта.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageClassify Stage = "classify"
	StageRollup   Stage = "rollup"
	StagePrice    Stage = "price"
	StageExport   Stage = "export"
)

// AllStages — этапы полного прогона в порядке выполнения.
var AllStages = []Stage{StageFetch, StageClassify, StageRollup, StagePrice, StageExport}

// ParseStages разбирает список этапов через запятую. Пустая строка — все этапы.
func ParseStages(raw string) ([]Stage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]Stage(nil), AllStages...), nil
	}
	var out []Stage
	for _, part := range strings.Split(raw, ",") {
		stage := Stage(strings.ToLower(strings.TrimSpace(part)))
		switch stage {
		case StageFetch, StageClassify, StageRollup, StagePrice, StageExport:
			out = append(out, stage)
		case "":
		default:
			return nil, fmt.Errorf("неизвестный этап %q", part)
		}
	}
	return out, nil
}

// IngestJob содержит задачу на обработку проекта.
type IngestJob struct {
	ID          string    `json:"job_id,omitempty"`
	Project     string    `json:"project"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Direction   Direction `json:"direction"`
	Stages      []Stage   `json:"stages,omitempty"`
	Force       bool      `json:"force,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// HasStage сообщает, входит ли этап в задачу. Пустой список означает все этапы.
func (j IngestJob) HasStage(stage Stage) bool {
	if len(j.Stages) == 0 {
		return true
	}
	for _, s := range j.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// IngestQueue описывает очередь задач обработки проектов.
type IngestQueue interface {
	Enqueue(ctx context.Context, job IngestJob) error
	Receive(ctx context.Context) (IngestJob, AckFunc, error)
	Close() error
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
