// Package placecache реализует кеш геокодированных адресов поверх таблицы мест.
package placecache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Romigo24/star-burger/internal/model"
)

const (
	resolveConcurrency = 8
	updateInterval     = 1 * time.Minute
	updateBatchSize    = 100
)

// ErrEmptyAddress возвращается при попытке разрешить пустой адрес.
var ErrEmptyAddress = errors.New("empty address")

// Repository описывает контракт хранилища мест, используемый кешем.
type Repository interface {
	GetOrCreatePlace(ctx context.Context, address string) (*model.Place, error)
	UpdatePlaceCoordinates(ctx context.Context, address string, point model.Point) error
	GetUnresolvedAddresses(ctx context.Context, limit int) ([]string, error)
}

// Geocoder описывает контракт клиента геокодирования.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (model.Point, error)
}

// Cache разрешает адреса в координаты, сохраняя результат в хранилище.
// Однажды разрешённое место повторно не геокодируется.
type Cache struct {
	repo     Repository
	geocoder Geocoder
	logger   *zap.Logger
}

// New создаёт кеш мест с указанным хранилищем и клиентом геокодирования.
// Клиент может быть nil: тогда места создаются, но остаются неразрешёнными.
func New(repo Repository, geocoder Geocoder, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		repo:     repo,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Locate возвращает место для адреса, при необходимости создавая запись и
// запрашивая геокодер. Ошибки геокодирования поглощаются: место возвращается
// неразрешённым, вызывающий код трактует отсутствие координат сам.
func (c *Cache) Locate(ctx context.Context, address string) (*model.Place, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}

	place, err := c.repo.GetOrCreatePlace(ctx, address)
	if err != nil {
		return nil, err
	}

	if place.Resolved() || c.geocoder == nil {
		return place, nil
	}

	point, err := c.geocoder.Resolve(ctx, address)
	if err != nil {
		c.logger.Warn("address resolution failed", zap.String("address", address), zap.Error(err))
		return place, nil
	}

	if err := c.repo.UpdatePlaceCoordinates(ctx, address, point); err != nil {
		return nil, err
	}

	place.Lat = &point.Lat
	place.Lon = &point.Lon

	return place, nil
}

// ResolveMany разрешает набор адресов и возвращает координаты для тех, что
// удалось определить. Разные адреса разрешаются параллельно, дубликаты
// схлопываются до одного обращения.
func (c *Cache) ResolveMany(ctx context.Context, addresses []string) (map[string]model.Point, error) {
	distinct := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		distinct = append(distinct, address)
	}

	var mu sync.Mutex
	points := make(map[string]model.Point, len(distinct))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for _, address := range distinct {
		address := address
		g.Go(func() error {
			place, err := c.Locate(ctx, address)
			if err != nil {
				return err
			}

			if point, ok := place.Point(); ok {
				mu.Lock()
				points[address] = point
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return points, nil
}

// StartPlaceUpdates запускает фоновый процесс повторного геокодирования
// неразрешённых адресов.
func (c *Cache) StartPlaceUpdates(ctx context.Context) {
	if c.geocoder == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.processUnresolvedBatch(ctx)
			}
		}
	}()
}

func (c *Cache) processUnresolvedBatch(ctx context.Context) {
	addresses, err := c.repo.GetUnresolvedAddresses(ctx, updateBatchSize)
	if err != nil {
		c.logger.Error("list unresolved places error", zap.Error(err))
		return
	}

	for _, address := range addresses {
		if _, err := c.Locate(ctx, address); err != nil {
			c.logger.Error("place update error", zap.String("address", address), zap.Error(err))
		}
	}
}
