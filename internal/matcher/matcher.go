// Package matcher подбирает рестораны для заказов и ранжирует их по расстоянию
// доставки. Пакет не обращается к внешним сервисам и хранилищу: индекс наличия и
// координаты вычисляются заранее и передаются на вход.
package matcher

import (
	"sort"

	"github.com/Romigo24/star-burger/internal/model"
)

// Index отображает товар на множество ресторанов, в которых он есть в наличии.
type Index map[int64]map[int64]struct{}

// BuildIndex строит индекс наличия по позициям меню. Учитываются только позиции
// с признаком наличия.
func BuildIndex(items []model.MenuItem) Index {
	idx := make(Index)
	for _, item := range items {
		if !item.Availability {
			continue
		}

		restaurants, ok := idx[item.ProductID]
		if !ok {
			restaurants = make(map[int64]struct{})
			idx[item.ProductID] = restaurants
		}
		restaurants[item.RestaurantID] = struct{}{}
	}
	return idx
}

// Stocks сообщает, есть ли товар в наличии у ресторана.
func (idx Index) Stocks(restaurantID, productID int64) bool {
	restaurants, ok := idx[productID]
	if !ok {
		return false
	}
	_, ok = restaurants[restaurantID]
	return ok
}

// CanFulfill сообщает, покрывает ли ресторан все позиции заказа. Заказы с
// частичным покрытием из нескольких ресторанов не поддерживаются.
func (idx Index) CanFulfill(restaurantID int64, order *model.Order) bool {
	for _, item := range order.Items {
		if !idx.Stocks(restaurantID, item.ProductID) {
			return false
		}
	}
	return true
}

// RankedRestaurant — ресторан-кандидат с расстоянием доставки.
// Расстояние nil, если координаты заказа или ресторана не определены.
type RankedRestaurant struct {
	Restaurant model.Restaurant
	DistanceKm *float64
}

// OrderRank — результат подбора ресторанов для одного заказа.
type OrderRank struct {
	Order        model.Order
	Suitable     []RankedRestaurant
	Assigned     *RankedRestaurant
	GeocodeError bool
}

// Rank подбирает для каждого заказа рестораны, способные его выполнить, и
// сортирует их по возрастанию расстояния. points отображает адрес на координаты;
// адреса без записи считаются неразрешёнными. Если координаты заказа или
// любого подходящего ресторана неизвестны, заказ помечается GeocodeError, а
// расстояния не вычисляются.
func Rank(orders []model.Order, restaurants []model.Restaurant, idx Index, points map[string]model.Point) []OrderRank {
	results := make([]OrderRank, 0, len(orders))

	for _, order := range orders {
		orderPoint, orderResolved := points[order.Address]

		suitable := make([]RankedRestaurant, 0)
		geocodeError := !orderResolved

		for _, restaurant := range restaurants {
			if !idx.CanFulfill(restaurant.ID, &order) {
				continue
			}

			ranked := RankedRestaurant{Restaurant: restaurant}

			restPoint, restResolved := points[restaurant.Address]
			if orderResolved && !restResolved {
				// Ресторан с неизвестными координатами нельзя отранжировать.
				geocodeError = true
			}
			if orderResolved && restResolved {
				km := roundKm(haversineKm(orderPoint, restPoint))
				ranked.DistanceKm = &km
			}

			suitable = append(suitable, ranked)
		}

		if geocodeError {
			// В деградированном режиме кандидаты перечисляются без расстояний
			// в исходном порядке.
			for i := range suitable {
				suitable[i].DistanceKm = nil
			}
		} else {
			sort.SliceStable(suitable, func(i, j int) bool {
				return *suitable[i].DistanceKm < *suitable[j].DistanceKm
			})
		}

		var assigned *RankedRestaurant
		if order.RestaurantID != nil {
			for _, restaurant := range restaurants {
				if restaurant.ID != *order.RestaurantID {
					continue
				}

				assigned = &RankedRestaurant{Restaurant: restaurant}
				restPoint, restResolved := points[restaurant.Address]
				if orderResolved && restResolved {
					km := roundKm(haversineKm(orderPoint, restPoint))
					assigned.DistanceKm = &km
				}
				break
			}
		}

		results = append(results, OrderRank{
			Order:        order,
			Suitable:     suitable,
			Assigned:     assigned,
			GeocodeError: geocodeError,
		})
	}

	return results
}
