// Package model содержит доменные сущности сервиса star-burger.
package model

import "time"

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusUnprocessed OrderStatus = "unprocessed"
	OrderStatusConfirmed   OrderStatus = "confirmed"
	OrderStatusAssembled   OrderStatus = "assembled"
	OrderStatusDelivering  OrderStatus = "delivering"
	OrderStatusCompleted   OrderStatus = "completed"
)

// statusOrder задаёт линейный порядок статусов: переходы возможны только вперёд.
var statusOrder = map[OrderStatus]int{
	OrderStatusUnprocessed: 0,
	OrderStatusConfirmed:   1,
	OrderStatusAssembled:   2,
	OrderStatusDelivering:  3,
	OrderStatusCompleted:   4,
}

// IsValidStatus сообщает, является ли строка известным статусом заказа.
func IsValidStatus(s OrderStatus) bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransition сообщает, допустим ли переход заказа из статуса from в статус to.
func CanTransition(from, to OrderStatus) bool {
	fi, ok := statusOrder[from]
	if !ok {
		return false
	}
	ti, ok := statusOrder[to]
	if !ok {
		return false
	}
	return ti > fi
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Restaurant представляет ресторан сети.
type Restaurant struct {
	ID           int64
	Name         string
	Address      string
	ContactPhone string
}

// Product представляет товар каталога. Жизненный цикл товара не зависит от ресторанов.
type Product struct {
	ID            int64
	Name          string
	Category      *string
	PriceCents    int64
	Description   string
	SpecialStatus bool
}

// MenuItem описывает позицию меню ресторана: пара (ресторан, товар) с признаком наличия.
type MenuItem struct {
	RestaurantID int64
	ProductID    int64
	Availability bool
}

// Order описывает заказ клиента.
type Order struct {
	ID           int64
	Firstname    string
	Lastname     string
	Phonenumber  string
	Address      string
	Status       OrderStatus
	Payment      PaymentMethod
	Comment      string
	CreatedAt    time.Time
	CalledAt     *time.Time
	DeliveredAt  *time.Time
	RestaurantID *int64
	Items        []OrderItem
	TotalCents   int64
}

// Assign привязывает заказ к ресторану. Необработанный заказ при назначении
// становится подтверждённым, а время звонка менеджера отмечается один раз:
// повторное назначение его не сбрасывает.
func (o *Order) Assign(restaurantID int64, now time.Time) {
	o.RestaurantID = &restaurantID
	if o.Status != OrderStatusUnprocessed {
		return
	}
	o.Status = OrderStatusConfirmed
	if o.CalledAt == nil {
		o.CalledAt = &now
	}
}

// OrderItem описывает позицию заказа. Цена фиксируется в момент создания заказа
// и не меняется при последующих изменениях цены товара.
type OrderItem struct {
	ProductID  int64
	Quantity   int32
	PriceCents int64
}

// Point представляет координату: широта и долгота в градусах.
type Point struct {
	Lat float64
	Lon float64
}

// Place хранит результат геокодирования адреса. Координаты либо заполнены обе,
// либо обе пусты — частично разрешённых записей не бывает.
type Place struct {
	Address string
	Lat     *float64
	Lon     *float64
}

// Resolved сообщает, определены ли координаты места.
func (p *Place) Resolved() bool {
	return p != nil && p.Lat != nil && p.Lon != nil
}

// Point возвращает координату места; второй результат false для неразрешённого места.
func (p *Place) Point() (Point, bool) {
	if !p.Resolved() {
		return Point{}, false
	}
	return Point{Lat: *p.Lat, Lon: *p.Lon}, true
}
