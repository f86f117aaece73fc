// Package geocoder предоставляет клиент для внешнего сервиса геокодирования.
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/Romigo24/star-burger/internal/model"
)

const (
	requestTimeout = 10 * time.Second
	retryPause     = 1 * time.Second
)

// ErrNotFound возвращается, если геокодер не нашёл ни одного объекта по адресу.
var (
	ErrNotFound = errors.New("address not found")
	// ErrMalformed возвращается при некорректном ответе геокодера.
	ErrMalformed = errors.New("malformed geocoder response")
)

// Client инкапсулирует HTTP-взаимодействие с геокодером.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	pause      time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создаёт HTTP-клиент геокодера по указанному адресу.
// maxRetries ограничивает общее число попыток запроса.
func NewClient(baseURL, apiKey string, maxRetries int, logger *zap.Logger) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxRetries: maxRetries,
		pause:      retryPause,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// featureCollection описывает формат ответа геокодера Яндекса.
type featureCollection struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject struct {
					Point struct {
						Pos string `json:"pos"`
					} `json:"Point"`
				} `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

// Resolve запрашивает координаты указанного адреса. Временные сбои (таймаут, 5xx)
// повторяются до исчерпания лимита попыток; пустой результат и некорректный ответ
// не повторяются и возвращаются как ErrNotFound и ErrMalformed соответственно.
func (c *Client) Resolve(ctx context.Context, address string) (model.Point, error) {
	if c == nil || c.baseURL == "" {
		return model.Point{}, fmt.Errorf("geocoder client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("geocode", address)
	params.Set("format", "json")

	requestURL := base + "?" + params.Encode()

	var point model.Point
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(c.maxRetries-1), retry.NewConstant(c.pause))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		p, err := c.fetch(ctx, requestURL)
		if err != nil {
			c.logger.Warn("geocoder request failed",
				zap.String("address", address),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
				return err
			}
			return retry.RetryableError(err)
		}

		point = p
		return nil
	})
	if err != nil {
		return model.Point{}, err
	}

	return point, nil
}

func (c *Client) fetch(ctx context.Context, requestURL string) (model.Point, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return model.Point{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Point{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Point{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var collection featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return model.Point{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}

	features := collection.Response.GeoObjectCollection.FeatureMember
	if len(features) == 0 {
		return model.Point{}, ErrNotFound
	}

	// Первый объект коллекции считается каноническим ответом.
	return parsePos(features[0].GeoObject.Point.Pos)
}

// parsePos разбирает строку координат формата "долгота широта".
func parsePos(pos string) (model.Point, error) {
	parts := strings.Fields(pos)
	if len(parts) != 2 {
		return model.Point{}, fmt.Errorf("%w: pos %q", ErrMalformed, pos)
	}

	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("%w: pos %q", ErrMalformed, pos)
	}

	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("%w: pos %q", ErrMalformed, pos)
	}

	return model.Point{Lat: lat, Lon: lon}, nil
}
