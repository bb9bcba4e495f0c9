package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/infra/metrics"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Client получает историю цен CoinGecko.
type Client struct {
	client     *resty.Client
	vsCurrency string
}

var _ domain.PriceSource = (*Client)(nil)

// NewClient создаёт клиента. apiKey может быть пустым для публичного API.
func NewClient(baseURL, apiKey, vsCurrency string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("x-cg-demo-api-key", apiKey)
	}
	return &Client{client: client, vsCurrency: vsCurrency}
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// Point — цена в момент времени.
type Point struct {
	Time  time.Time
	Price float64
}

// DailyOHLC возвращает дневные свечи за [from, to+1d).
func (c *Client) DailyOHLC(ctx context.Context, coinID string, from, to time.Time) (domain.PriceSeries, error) {
	if coinID == "" {
		return nil, fmt.Errorf("coingecko: пустой идентификатор монеты")
	}
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", coinID).
		SetQueryParams(map[string]string{
			"vs_currency": c.vsCurrency,
			"from":        strconv.FormatInt(domain.DayStart(from).Unix(), 10),
			"to":          strconv.FormatInt(domain.DayStart(to).Add(24*time.Hour).Unix(), 10),
		}).
		Get("/coins/{id}/market_chart/range")
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("coingecko: статус %d: %s", resp.StatusCode(), clip(resp.String(), 200))
	}
	metrics.ObserveNetworkRequest("coingecko", "market_chart_range", coinID, start, err)
	if err != nil {
		return nil, fmt.Errorf("coingecko %s: %w", coinID, err)
	}

	var chart marketChart
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("coingecko: разбор ответа: %w", err)
	}
	points := make([]Point, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		points = append(points, Point{Time: time.UnixMilli(int64(p[0])).UTC(), Price: p[1]})
	}
	return FoldDaily(points), nil
}

// FoldDaily сворачивает точки в дневные свечи UTC: open — первая точка дня,
// close — последняя.
func FoldDaily(points []Point) domain.PriceSeries {
	sorted := append([]Point(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	out := domain.PriceSeries{}
	for _, p := range sorted {
		date := domain.FormatDate(p.Time)
		candle, ok := out[date]
		if !ok {
			out[date] = domain.OHLC{Open: p.Price, High: p.Price, Low: p.Price, Close: p.Price}
			continue
		}
		if p.Price > candle.High {
			candle.High = p.Price
		}
		if p.Price < candle.Low {
			candle.Low = p.Price
		}
		candle.Close = p.Price
		out[date] = candle
	}
	return out
}

// Coin — монета из результатов поиска CoinGecko.
type Coin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

// Category — категория из результатов поиска CoinGecko.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult — ответ /search: найденные монеты в порядке выдачи и категории.
type SearchResult struct {
	Coins      []Coin     `json:"coins"`
	Categories []Category `json:"categories"`
}

// Search ищет монеты по названию или тикеру. Нужен, чтобы заполнить coingecko_id в реестре.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, fmt.Errorf("coingecko: пустой поисковый запрос")
	}
	var out SearchResult
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&out).
		Get("/search")
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("coingecko: статус %d: %s", resp.StatusCode(), clip(resp.String(), 200))
	}
	metrics.ObserveNetworkRequest("coingecko", "search", query, start, err)
	if err != nil {
		return SearchResult{}, fmt.Errorf("coingecko search %q: %w", query, err)
	}
	return out, nil
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
