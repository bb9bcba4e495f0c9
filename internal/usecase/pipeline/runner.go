package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
	"tg-meme-pulse/internal/usecase/batch"
	"tg-meme-pulse/internal/usecase/classify"
)

type dayBatcher interface {
	Run(ctx context.Context, project domain.Project, from, to time.Time, dir domain.Direction) (batch.Report, error)
}

type dayClassifier interface {
	Version() domain.Version
	ClassifyRange(ctx context.Context, project string, from, to time.Time, force bool) (classify.Report, error)
}

type rollupBuilder interface {
	Build(ctx context.Context, project string, version domain.Version) (domain.RollupDocument, error)
}

type priceFetcher interface {
	Fetch(ctx context.Context, project domain.Project, from, to time.Time) (domain.PriceSeries, error)
}

// Exporter выгружает свёртку и цены проекта, возвращая путь результата.
type Exporter interface {
	Export(ctx context.Context, doc domain.RollupDocument, prices domain.PriceSeries) (string, error)
}

// Deps — зависимости прогона. Price, Export и Notifier необязательны.
type Deps struct {
	Registry   domain.ProjectRegistry
	Store      domain.DayStore
	Locker     domain.Locker
	Batcher    dayBatcher
	Classifier dayClassifier
	Rollup     rollupBuilder
	Price      priceFetcher
	Export     Exporter
	Notifier   domain.Notifier
}

// Runner выполняет этапы обработки проекта под блокировкой его каталога.
type Runner struct {
	deps Deps
	log  zerolog.Logger
	now  func() time.Time
}

// NewRunner создаёт исполнителя прогонов.
func NewRunner(deps Deps, log zerolog.Logger) *Runner {
	return &Runner{deps: deps, log: log, now: time.Now}
}

// Run обрабатывает задачу одного проекта. Ошибка этапа записывается в отчёт,
// следующие этапы выполняются, если им есть с чем работать. Возвращаемая ошибка
// означает, что прогон не начался (неизвестный проект, блокировка) или прерван отменой.
func (r *Runner) Run(ctx context.Context, job domain.IngestJob) (RunReport, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	from, to := r.bounds(job)
	report := RunReport{JobID: job.ID, Project: job.Project, From: from, To: to, Started: r.now().UTC(), Errors: map[domain.Stage]error{}}
	log := r.log.With().Str("job_id", job.ID).Str("project", job.Project).Logger()

	project, err := r.deps.Registry.Get(job.Project)
	if err != nil {
		return report, err
	}
	unlock, err := r.deps.Locker.Lock(ctx, project.Name)
	if err != nil {
		if errors.Is(err, domain.ErrLocked) {
			log.Warn().Msg("pipeline: проект занят, пропускаем")
		}
		return report, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Error().Err(err).Msg("pipeline: не удалось снять блокировку")
		}
	}()

	log.Info().
		Str("from", domain.FormatDate(from)).
		Str("to", domain.FormatDate(to)).
		Str("direction", string(job.Direction)).
		Msg("pipeline: старт прогона")

	if job.HasStage(domain.StageFetch) {
		dir := job.Direction
		if dir == "" {
			dir = domain.DirectionForward
		}
		fetched, err := r.deps.Batcher.Run(ctx, project, from, to, dir)
		report.Fetch = &fetched
		if err := r.stageFailed(ctx, &report, domain.StageFetch, err, log); err != nil {
			return r.finish(ctx, report), err
		}
	}

	if job.HasStage(domain.StageClassify) {
		classified, err := r.deps.Classifier.ClassifyRange(ctx, project.Name, from, to, job.Force)
		report.Classify = &classified
		if err := r.stageFailed(ctx, &report, domain.StageClassify, err, log); err != nil {
			return r.finish(ctx, report), err
		}
	}

	var rollup *domain.RollupDocument
	if job.HasStage(domain.StageRollup) || job.HasStage(domain.StageExport) {
		doc, err := r.deps.Rollup.Build(ctx, project.Name, r.deps.Classifier.Version())
		if err == nil {
			rollup = &doc
			report.RollupDays = len(doc.DateData)
		}
		if err := r.stageFailed(ctx, &report, domain.StageRollup, err, log); err != nil {
			return r.finish(ctx, report), err
		}
	}

	var prices domain.PriceSeries
	if job.HasStage(domain.StagePrice) && r.deps.Price != nil && project.CoinGeckoID != "" {
		// диапазон цен — все загруженные дни проекта
		fetched, err := r.deps.Price.Fetch(ctx, project, time.Time{}, time.Time{})
		if err == nil {
			prices = fetched
			report.PriceDays = len(fetched)
		}
		if err := r.stageFailed(ctx, &report, domain.StagePrice, err, log); err != nil {
			return r.finish(ctx, report), err
		}
	}

	if job.HasStage(domain.StageExport) && r.deps.Export != nil && rollup != nil {
		if prices == nil {
			stored, err := r.deps.Store.LoadPrices(project.Name)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				log.Warn().Err(err).Msg("pipeline: цены для выгрузки не прочитаны")
			}
			prices = stored
		}
		path, err := r.deps.Export.Export(ctx, *rollup, prices)
		report.Exported = path
		if err := r.stageFailed(ctx, &report, domain.StageExport, err, log); err != nil {
			return r.finish(ctx, report), err
		}
	}

	return r.finish(ctx, report), nil
}

// stageFailed записывает ошибку этапа. Возвращает ошибку только при отмене контекста.
func (r *Runner) stageFailed(ctx context.Context, report *RunReport, stage domain.Stage, err error, log zerolog.Logger) error {
	if err == nil {
		return nil
	}
	report.Errors[stage] = err
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Error().Err(err).Str("stage", string(stage)).Msg("pipeline: ошибка этапа, продолжаем")
	return nil
}

func (r *Runner) finish(ctx context.Context, report RunReport) RunReport {
	report.Finished = r.now().UTC()
	metrics.PipelineRunSeconds.Observe(report.Finished.Sub(report.Started).Seconds())
	r.log.Info().
		Str("job_id", report.JobID).
		Str("project", report.Project).
		Dur("duration", report.Finished.Sub(report.Started)).
		Int("errors", len(report.Errors)).
		Msg("pipeline: прогон завершён")
	if r.deps.Notifier != nil && ctx.Err() == nil {
		if err := r.deps.Notifier.Notify(ctx, report.Text()); err != nil {
			r.log.Error().Err(err).Str("project", report.Project).Msg("pipeline: отчёт не отправлен")
		}
	}
	return report
}

// bounds приводит границы задачи к дням: пустой конец — сегодня, пустое начало — конец.
func (r *Runner) bounds(job domain.IngestJob) (time.Time, time.Time) {
	to := job.To
	if to.IsZero() {
		to = r.now()
	}
	from := job.From
	if from.IsZero() {
		from = to
	}
	return domain.DayStart(from), domain.DayStart(to)
}

// RunAll выполняет задачи параллельно, не больше parallel одновременно.
// Ошибка одного проекта не останавливает остальные; отчёты в порядке задач.
func (r *Runner) RunAll(ctx context.Context, jobs []domain.IngestJob, parallel int) ([]RunReport, error) {
	if parallel <= 0 {
		parallel = 1
	}
	reports := make([]RunReport, len(jobs))
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, job := range jobs {
		g.Go(func() error {
			report, err := r.Run(ctx, job)
			if err != nil {
				report.Err = err
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return reports, err
	}
	return reports, nil
}

// JobsFor собирает задачи одного диапазона для набора проектов.
func JobsFor(projects []domain.Project, from, to time.Time, dir domain.Direction, stages []domain.Stage, force bool, now time.Time) []domain.IngestJob {
	jobs := make([]domain.IngestJob, 0, len(projects))
	for _, p := range projects {
		jobs = append(jobs, domain.IngestJob{
			ID:          uuid.NewString(),
			Project:     p.Name,
			From:        from,
			To:          to,
			Direction:   dir,
			Stages:      stages,
			Force:       force,
			RequestedAt: now,
		})
	}
	return jobs
}
