// Package service реализует бизнес-логику сервиса star-burger.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Romigo24/star-burger/internal/matcher"
	"github.com/Romigo24/star-burger/internal/model"
)

// resolveTimeout ограничивает фоновое геокодирование адреса нового заказа:
// таймаут клиента на попытку плюс запас на повторы.
const resolveTimeout = 35 * time.Second

// ErrEmptyOrder возвращается при попытке создать заказ без позиций.
var (
	ErrEmptyOrder = errors.New("order has no items")
	// ErrInvalidQuantity возвращается для позиции заказа с количеством меньше единицы.
	ErrInvalidQuantity = errors.New("order item quantity must be positive")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateOrder(ctx context.Context, order *model.Order) (int64, error)
	GetOpenOrders(ctx context.Context) ([]model.Order, error)
	GetRestaurants(ctx context.Context) ([]model.Restaurant, error)
	GetMenuItems(ctx context.Context, onlyAvailable bool) ([]model.MenuItem, error)
	GetProducts(ctx context.Context, onlyAvailable bool) ([]model.Product, error)
	AssignRestaurant(ctx context.Context, orderID, restaurantID int64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
}

// Places описывает контракт кеша геокодированных адресов.
type Places interface {
	ResolveMany(ctx context.Context, addresses []string) (map[string]model.Point, error)
	Locate(ctx context.Context, address string) (*model.Place, error)
}

// Service содержит бизнес-логику сервиса star-burger.
type Service struct {
	repo   Repository
	places Places
	logger *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и кешем мест.
func NewService(repo Repository, places Places, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		places: places,
		logger: logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterOrder создаёт заказ и запускает геокодирование его адреса.
// Разрешение адреса выполняется в фоне и не задерживает ответ клиенту.
func (s *Service) RegisterOrder(ctx context.Context, order *model.Order) (int64, error) {
	if len(order.Items) == 0 {
		return 0, ErrEmptyOrder
	}
	for _, item := range order.Items {
		if item.Quantity < 1 {
			return 0, fmt.Errorf("%w: product %d", ErrInvalidQuantity, item.ProductID)
		}
	}

	if order.Payment == "" {
		order.Payment = model.PaymentCash
	}

	id, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return 0, err
	}

	if s.places != nil {
		address := order.Address
		go func() {
			resolveCtx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
			defer cancel()

			if _, err := s.places.Locate(resolveCtx, address); err != nil {
				s.logger.Warn("order address resolution failed",
					zap.Int64("orderID", id), zap.Error(err))
			}
		}()
	}

	return id, nil
}

// RankedOrders возвращает незавершённые заказы с подобранными ресторанами,
// отранжированными по расстоянию доставки.
func (s *Service) RankedOrders(ctx context.Context) ([]matcher.OrderRank, error) {
	orders, err := s.repo.GetOpenOrders(ctx)
	if err != nil {
		return nil, err
	}

	restaurants, err := s.repo.GetRestaurants(ctx)
	if err != nil {
		return nil, err
	}

	menuItems, err := s.repo.GetMenuItems(ctx, true)
	if err != nil {
		return nil, err
	}

	// Индекс наличия строится заново на каждый запрос по актуальным данным.
	idx := matcher.BuildIndex(menuItems)

	addresses := make([]string, 0, len(orders)+len(restaurants))
	for _, o := range orders {
		addresses = append(addresses, o.Address)
	}
	for _, r := range restaurants {
		addresses = append(addresses, r.Address)
	}

	points := map[string]model.Point{}
	if s.places != nil {
		points, err = s.places.ResolveMany(ctx, addresses)
		if err != nil {
			return nil, err
		}
	}

	return matcher.Rank(orders, restaurants, idx, points), nil
}

// AssignRestaurant назначает заказу ресторан-исполнитель.
func (s *Service) AssignRestaurant(ctx context.Context, orderID, restaurantID int64) error {
	return s.repo.AssignRestaurant(ctx, orderID, restaurantID)
}

// AdvanceOrderStatus переводит заказ в следующий статус жизненного цикла.
func (s *Service) AdvanceOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	if !model.IsValidStatus(status) {
		return fmt.Errorf("unknown status: %s", status)
	}
	return s.repo.UpdateOrderStatus(ctx, orderID, status)
}

// GetAvailableProducts возвращает товары, доступные хотя бы в одном ресторане.
func (s *Service) GetAvailableProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.GetProducts(ctx, true)
}

// GetRestaurants возвращает список ресторанов.
func (s *Service) GetRestaurants(ctx context.Context) ([]model.Restaurant, error) {
	return s.repo.GetRestaurants(ctx)
}

// ProductAvailability описывает наличие товара по ресторанам: срез соответствует
// списку ресторанов в порядке их следования.
type ProductAvailability struct {
	Product      model.Product
	Availability []bool
}

// GetProductsAvailability возвращает матрицу наличия товаров по ресторанам.
func (s *Service) GetProductsAvailability(ctx context.Context) ([]model.Restaurant, []ProductAvailability, error) {
	restaurants, err := s.repo.GetRestaurants(ctx)
	if err != nil {
		return nil, nil, err
	}

	products, err := s.repo.GetProducts(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	menuItems, err := s.repo.GetMenuItems(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	available := make(map[int64]map[int64]bool, len(products))
	for _, item := range menuItems {
		byRestaurant, ok := available[item.ProductID]
		if !ok {
			byRestaurant = make(map[int64]bool)
			available[item.ProductID] = byRestaurant
		}
		byRestaurant[item.RestaurantID] = item.Availability
	}

	res := make([]ProductAvailability, 0, len(products))
	for _, product := range products {
		row := ProductAvailability{
			Product:      product,
			Availability: make([]bool, len(restaurants)),
		}
		for i, restaurant := range restaurants {
			row.Availability[i] = available[product.ID][restaurant.ID]
		}
		res = append(res, row)
	}

	return restaurants, res, nil
}
