// Пакет registry — клиент реестра артефактов.
// Upload Module проверяет существование целевого артефакта при
// инициализации сессии; ответы кэшируются в LRU с TTL, чтобы
// серия загрузок в один артефакт не долбила реестр.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша реестра.
var (
	registryCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_registry_cache_hits_total",
		Help: "Общее количество попаданий в кэш ответов реестра артефактов.",
	})
	registryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_registry_cache_misses_total",
		Help: "Общее количество промахов кэша ответов реестра артефактов.",
	})
)

// ArtifactRegistry — проверка существования артефакта.
type ArtifactRegistry interface {
	// Exists возвращает true, если артефакт зарегистрирован в реестре.
	Exists(ctx context.Context, artifactID string) (bool, error)
}

// Client — HTTP-клиент реестра артефактов с LRU-кэшем ответов.
// Кэшируются оба исхода: и существующие, и отсутствующие артефакты.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *expirable.LRU[string, bool]
}

// cacheSize — максимальное количество артефактов в кэше.
const cacheSize = 1024

// NewClient создаёт клиент реестра.
// ttl — время жизни записи кэша после добавления.
func NewClient(baseURL string, ttl time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   expirable.NewLRU[string, bool](cacheSize, nil, ttl),
	}
}

// Exists проверяет существование артефакта: сначала кэш, затем
// GET {base}/api/v1/artifacts/{id}. 200 — существует, 404 — нет,
// остальное — ошибка реестра (не кэшируется).
func (c *Client) Exists(ctx context.Context, artifactID string) (bool, error) {
	if exists, ok := c.cache.Get(artifactID); ok {
		registryCacheHitsTotal.Inc()
		return exists, nil
	}
	registryCacheMissesTotal.Inc()

	url := fmt.Sprintf("%s/api/v1/artifacts/%s", c.baseURL, artifactID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("ошибка создания запроса к реестру: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("реестр артефактов недоступен: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.cache.Add(artifactID, true)
		return true, nil
	case http.StatusNotFound:
		c.cache.Add(artifactID, false)
		return false, nil
	default:
		return false, fmt.Errorf("реестр артефактов вернул статус %d", resp.StatusCode)
	}
}

// Static — реестр с фиксированным ответом. Используется в тестах и
// при работе без внешнего реестра.
type Static struct {
	// Artifacts — известные артефакты; nil означает «существуют все»
	Artifacts map[string]bool
}

// Exists возвращает true для известного артефакта.
func (s *Static) Exists(_ context.Context, artifactID string) (bool, error) {
	if s.Artifacts == nil {
		return true, nil
	}
	return s.Artifacts[artifactID], nil
}
