package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FetchedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_messages_total",
		Help: "Сообщения, прочитанные из истории чатов",
	}, []string{"project", "kind"})
	FloodWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fetch_flood_waits_total",
		Help: "Ответы FLOOD_WAIT от провайдера",
	})
	FloodWaitSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fetch_flood_wait_seconds_total",
		Help: "Суммарное время ожидания по FLOOD_WAIT",
	})
	DayOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_days_total",
		Help: "Дни, обработанные загрузчиком, по результату",
	}, []string{"project", "outcome"})
	ClassifyOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classify_days_total",
		Help: "Дни, отправленные в классификатор, по результату",
	}, []string{"project", "outcome"})
	RollupDays = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rollup_days",
		Help: "Количество дней в последней свёртке проекта",
	}, []string{"project"})
	PipelineRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_seconds",
		Help:    "Время полного прогона проекта",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200, 14400},
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 240, 300, 450, 600},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FetchedMessages,
		FloodWaits,
		FloodWaitSeconds,
		DayOutcomes,
		ClassifyOutcomes,
		RollupDays,
		PipelineRunSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveFloodWait учитывает ожидание по FLOOD_WAIT.
func ObserveFloodWait(wait time.Duration) {
	FloodWaits.Inc()
	FloodWaitSeconds.Add(wait.Seconds())
}

// IncDayOutcome учитывает результат обработки дня загрузчиком.
func IncDayOutcome(project, outcome string) {
	DayOutcomes.WithLabelValues(project, outcome).Inc()
}

// IncClassifyOutcome учитывает результат классификации дня.
func IncClassifyOutcome(project, outcome string) {
	ClassifyOutcomes.WithLabelValues(project, outcome).Inc()
}

// AddFetchedMessages учитывает прочитанные сообщения.
func AddFetchedMessages(project string, raw, filtered int) {
	FetchedMessages.WithLabelValues(project, "raw").Add(float64(raw))
	FetchedMessages.WithLabelValues(project, "filtered").Add(float64(filtered))
}
