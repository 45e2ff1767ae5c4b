package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client — HTTP-клиент каталога, реализующий domain.ProductFetcher.
// Используется корзиной для сверки позиций с актуальными данными товаров.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// NewClient создаёт клиент каталога для заданного базового URL.
func NewClient(baseURL string, httpClient *http.Client, logger *log.Entry) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = log.WithField("component", "catalog-client")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type productPayload struct {
	PID          int64       `json:"pid"`
	CatID        int64       `json:"catid"`
	CategoryName string      `json:"category_name"`
	Name         string      `json:"name"`
	Price        json.Number `json:"price"`
	Description  string      `json:"description"`
	ImagePath    string      `json:"image_path"`
	ThumbPath    string      `json:"thumb_path"`
}

// Fetch возвращает товар по идентификатору. Ответ 404 транслируется в
// domain.ErrProductNotFound, прочие неуспешные статусы — в обычную ошибку.
func (c *Client) Fetch(ctx context.Context, id int64) (domain.Product, error) {
	url := fmt.Sprintf("%s/api/products/%d", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Product{}, fmt.Errorf("fetch product %d: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Product{}, domain.ErrProductNotFound
	default:
		return domain.Product{}, fmt.Errorf("fetch product %d: unexpected status %d", id, resp.StatusCode)
	}

	var payload productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %d: %w", id, err)
	}

	priceCents, err := domain.ParsePriceCents(payload.Price.String())
	if err != nil {
		// Кривая цена в ответе каталога трактуется как нулевая, а не как сбой.
		c.logger.WithField("product_id", id).WithField("price", payload.Price.String()).
			Warn("catalog returned unparsable price, treating as zero")
		priceCents = 0
	}

	return domain.Product{
		ID:           payload.PID,
		CategoryID:   payload.CatID,
		CategoryName: payload.CategoryName,
		Name:         payload.Name,
		PriceCents:   priceCents,
		Description:  payload.Description,
		ImagePath:    payload.ImagePath,
		ThumbPath:    payload.ThumbPath,
	}, nil
}

var _ domain.ProductFetcher = (*Client)(nil)
