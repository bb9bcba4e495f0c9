package projects

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tg-meme-pulse/internal/domain"
)

// ErrUnknownProject возвращается, если проекта нет в реестре.
var ErrUnknownProject = errors.New("проект не найден в реестре")

var nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type entry struct {
	Source          string `yaml:"source"`
	Chain           string `yaml:"chain"`
	ContractAddress string `yaml:"contract_address"`
	CoinGeckoID     string `yaml:"coingecko_id"`
	Healthy         *bool  `yaml:"healthy"`
}

// Registry — файл проектов, секции по имени проекта.
type Registry struct {
	projects map[string]domain.Project
}

var _ domain.ProjectRegistry = (*Registry)(nil)

// Load читает реестр из файла.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение реестра проектов: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML реестра.
func Parse(data []byte) (*Registry, error) {
	var raw map[string]entry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("разбор реестра проектов: %w", err)
	}
	reg := &Registry{projects: make(map[string]domain.Project, len(raw))}
	for name, e := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if !nameRegex.MatchString(name) {
			return nil, fmt.Errorf("некорректное имя проекта %q", name)
		}
		if strings.TrimSpace(e.Source) == "" {
			return nil, fmt.Errorf("проект %s: не указан source", name)
		}
		healthy := true
		if e.Healthy != nil {
			healthy = *e.Healthy
		}
		reg.projects[name] = domain.Project{
			Name:            name,
			Source:          strings.TrimSpace(e.Source),
			Chain:           strings.TrimSpace(e.Chain),
			ContractAddress: strings.TrimSpace(e.ContractAddress),
			CoinGeckoID:     strings.TrimSpace(e.CoinGeckoID),
			Healthy:         healthy,
		}
	}
	return reg, nil
}

// Get возвращает проект по имени.
func (r *Registry) Get(name string) (domain.Project, error) {
	p, ok := r.projects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	return p, nil
}

// List возвращает проекты, отсортированные по имени.
func (r *Registry) List() []domain.Project {
	out := make([]domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
