package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/usecase/series"
)

// maxWindow ограничивает окно скользящего среднего.
const maxWindow = 90

// Dashboard отдаёт данные для графиков: список проектов, доступные метрики
// и сглаженные ряды с ценой.
type Dashboard struct {
	store    domain.DayStore
	registry domain.ProjectRegistry
	version  domain.Version
	log      zerolog.Logger
}

// NewDashboard создаёт обработчики. version — пара версий по умолчанию,
// её можно переопределить параметрами llm и prompt.
func NewDashboard(store domain.DayStore, registry domain.ProjectRegistry, version domain.Version, log zerolog.Logger) *Dashboard {
	return &Dashboard{store: store, registry: registry, version: version, log: log}
}

// Mount регистрирует маршруты /api/projects.
func (d *Dashboard) Mount(r chi.Router) {
	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", d.listProjects)
		r.Get("/{project}/metrics", d.metrics)
		r.Get("/{project}/series", d.series)
	})
}

type projectView struct {
	Name            string `json:"name"`
	Source          string `json:"source"`
	Chain           string `json:"chain,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	CoinGeckoID     string `json:"coingecko_id,omitempty"`
	Healthy         bool   `json:"healthy"`
}

func (d *Dashboard) listProjects(w http.ResponseWriter, r *http.Request) {
	projects := d.registry.List()
	out := make([]projectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectView{
			Name:            p.Name,
			Source:          p.Source,
			Chain:           p.Chain,
			ContractAddress: p.ContractAddress,
			CoinGeckoID:     p.CoinGeckoID,
			Healthy:         p.Healthy,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Dashboard) metrics(w http.ResponseWriter, r *http.Request) {
	project, rollup, ok := d.loadRollup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project": project.Name,
		"metrics": series.Available(rollup),
		"dates":   series.Dates(rollup),
	})
}

func (d *Dashboard) series(w http.ResponseWriter, r *http.Request) {
	project, rollup, ok := d.loadRollup(w, r)
	if !ok {
		return
	}
	window := 1
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxWindow {
			WriteError(w, http.StatusBadRequest, fmt.Errorf("window должен быть в диапазоне 1..%d", maxWindow))
			return
		}
		window = n
	}
	var names []string
	for _, name := range strings.Split(r.URL.Query().Get("metrics"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	prices, err := d.store.LoadPrices(project.Name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.log.Error().Err(err).Str("project", project.Name).Msg("http: не удалось прочитать цены")
		}
		prices = nil
	}
	chart, err := series.Build(rollup, prices, names, window)
	if err != nil {
		if errors.Is(err, series.ErrUnknownMetric) {
			WriteError(w, http.StatusBadRequest, err)
			return
		}
		WriteError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (d *Dashboard) loadRollup(w http.ResponseWriter, r *http.Request) (domain.Project, domain.RollupDocument, bool) {
	project, err := d.registry.Get(chi.URLParam(r, "project"))
	if err != nil {
		WriteError(w, http.StatusNotFound, err)
		return domain.Project{}, domain.RollupDocument{}, false
	}
	version := d.version
	if llm := r.URL.Query().Get("llm"); llm != "" {
		version.Classifier = llm
	}
	if prompt := r.URL.Query().Get("prompt"); prompt != "" {
		version.Schema = prompt
	}
	rollup, err := d.store.LoadRollup(project.Name, version)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Errorf("нет свёртки для %s (llm=%s, prompt=%s)", project.Name, version.Classifier, version.Schema))
			return domain.Project{}, domain.RollupDocument{}, false
		}
		d.log.Error().Err(err).Str("project", project.Name).Msg("http: не удалось прочитать свёртку")
		WriteError(w, http.StatusInternalServerError, errors.New("ошибка чтения свёртки"))
		return domain.Project{}, domain.RollupDocument{}, false
	}
	return project, rollup, true
}
