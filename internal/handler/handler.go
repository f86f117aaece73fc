// Package handler содержит HTTP-обработчики API сервиса star-burger.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Romigo24/star-burger/internal/matcher"
	"github.com/Romigo24/star-burger/internal/middleware"
	"github.com/Romigo24/star-burger/internal/model"
	"github.com/Romigo24/star-burger/internal/repository"
	"github.com/Romigo24/star-burger/internal/service"
	"github.com/Romigo24/star-burger/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterOrder(ctx context.Context, order *model.Order) (int64, error)
	RankedOrders(ctx context.Context) ([]matcher.OrderRank, error)
	AssignRestaurant(ctx context.Context, orderID, restaurantID int64) error
	AdvanceOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	GetAvailableProducts(ctx context.Context) ([]model.Product, error)
	GetRestaurants(ctx context.Context) ([]model.Restaurant, error)
	GetProductsAvailability(ctx context.Context) ([]model.Restaurant, []service.ProductAvailability, error)
}

// Handler реализует HTTP-обработчики API сервиса star-burger.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	managerSecret  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, managerSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		managerSecret:  managerSecret,
	}
}

type orderItemRequest struct {
	Product  int64 `json:"product"`
	Quantity int32 `json:"quantity"`
}

type orderRequest struct {
	Firstname   string             `json:"firstname"`
	Lastname    string             `json:"lastname"`
	Phonenumber string             `json:"phonenumber"`
	Address     string             `json:"address"`
	Payment     string             `json:"payment,omitempty"`
	Comment     string             `json:"comment,omitempty"`
	Products    []orderItemRequest `json:"products"`
}

// RegisterOrder принимает новый заказ клиента.
func (h *Handler) RegisterOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req.Firstname = strings.TrimSpace(req.Firstname)
	req.Lastname = strings.TrimSpace(req.Lastname)
	req.Address = strings.TrimSpace(req.Address)

	if req.Firstname == "" || req.Lastname == "" || req.Address == "" || len(req.Products) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidPhoneNumber(req.Phonenumber) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	payment := model.PaymentMethod(req.Payment)
	if req.Payment != "" && payment != model.PaymentCash && payment != model.PaymentCard {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order := &model.Order{
		Firstname:   req.Firstname,
		Lastname:    req.Lastname,
		Phonenumber: req.Phonenumber,
		Address:     req.Address,
		Payment:     payment,
		Comment:     req.Comment,
	}
	for _, item := range req.Products {
		order.Items = append(order.Items, model.OrderItem{
			ProductID: item.Product,
			Quantity:  item.Quantity,
		})
	}

	id, err := h.service.RegisterOrder(r.Context(), order)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidQuantity):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, repository.ErrProductNotFound):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("register order error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

type productResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Category      *string `json:"category"`
	Price         float64 `json:"price"`
	Description   string  `json:"description"`
	SpecialStatus bool    `json:"special_status"`
}

// GetProducts возвращает товары, доступные для заказа.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetAvailableProducts(r.Context())
	if err != nil {
		h.logger.Error("get products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:            p.ID,
			Name:          p.Name,
			Category:      p.Category,
			Price:         float64(p.PriceCents) / 100,
			Description:   p.Description,
			SpecialStatus: p.SpecialStatus,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// ManagerLogin проверяет пароль менеджера и устанавливает cookie доступа.
func (h *Handler) ManagerLogin(w http.ResponseWriter, r *http.Request) {
	if h.managerSecret == "" {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Password != h.managerSecret {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type rankedRestaurantResponse struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	DistanceKm *float64 `json:"distance_km"`
}

type rankedOrderResponse struct {
	ID           int64                      `json:"id"`
	Firstname    string                     `json:"firstname"`
	Lastname     string                     `json:"lastname"`
	Phonenumber  string                     `json:"phonenumber"`
	Address      string                     `json:"address"`
	Status       string                     `json:"status"`
	Payment      string                     `json:"payment"`
	Comment      string                     `json:"comment,omitempty"`
	Total        float64                    `json:"total"`
	CreatedAt    string                     `json:"created_at"`
	GeocodeError bool                       `json:"geocode_error"`
	Restaurants  []rankedRestaurantResponse `json:"restaurants"`
	Assigned     *rankedRestaurantResponse  `json:"assigned_restaurant"`
}

// ManagerOrders возвращает незавершённые заказы с подобранными ресторанами.
func (h *Handler) ManagerOrders(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsManagerRequest(r.Context()) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	results, err := h.service.RankedOrders(r.Context())
	if err != nil {
		h.logger.Error("ranked orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]rankedOrderResponse, 0, len(results))
	for _, res := range results {
		item := rankedOrderResponse{
			ID:           res.Order.ID,
			Firstname:    res.Order.Firstname,
			Lastname:     res.Order.Lastname,
			Phonenumber:  res.Order.Phonenumber,
			Address:      res.Order.Address,
			Status:       string(res.Order.Status),
			Payment:      string(res.Order.Payment),
			Comment:      res.Order.Comment,
			Total:        float64(res.Order.TotalCents) / 100,
			CreatedAt:    res.Order.CreatedAt.Format(time.RFC3339),
			GeocodeError: res.GeocodeError,
			Restaurants:  make([]rankedRestaurantResponse, 0, len(res.Suitable)),
		}

		for _, s := range res.Suitable {
			item.Restaurants = append(item.Restaurants, rankedRestaurantResponse{
				ID:         s.Restaurant.ID,
				Name:       s.Restaurant.Name,
				DistanceKm: s.DistanceKm,
			})
		}

		if res.Assigned != nil {
			item.Assigned = &rankedRestaurantResponse{
				ID:         res.Assigned.Restaurant.ID,
				Name:       res.Assigned.Restaurant.Name,
				DistanceKm: res.Assigned.DistanceKm,
			}
		}

		resp = append(resp, item)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type assignRequest struct {
	RestaurantID int64 `json:"restaurant_id"`
}

// AssignRestaurant назначает заказу ресторан-исполнитель.
func (h *Handler) AssignRestaurant(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsManagerRequest(r.Context()) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RestaurantID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AssignRestaurant(r.Context(), orderID, req.RestaurantID); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrRestaurantNotFound):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("assign restaurant error", zap.Error(err),
				zap.Int64("orderID", orderID), zap.Int64("restaurantID", req.RestaurantID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus переводит заказ в следующий статус.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsManagerRequest(r.Context()) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	status := model.OrderStatus(req.Status)
	if !model.IsValidStatus(status) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AdvanceOrderStatus(r.Context(), orderID, status); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInvalidTransition):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("update order status error", zap.Error(err), zap.Int64("orderID", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type restaurantResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// ManagerRestaurants возвращает список ресторанов сети.
func (h *Handler) ManagerRestaurants(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsManagerRequest(r.Context()) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	restaurants, err := h.service.GetRestaurants(r.Context())
	if err != nil {
		h.logger.Error("get restaurants error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]restaurantResponse, 0, len(restaurants))
	for _, rest := range restaurants {
		resp = append(resp, restaurantResponse{
			ID:           rest.ID,
			Name:         rest.Name,
			Address:      rest.Address,
			ContactPhone: rest.ContactPhone,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type productAvailabilityResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Availability []bool  `json:"availability"`
}

type availabilityMatrixResponse struct {
	Restaurants []restaurantResponse          `json:"restaurants"`
	Products    []productAvailabilityResponse `json:"products"`
}

// ManagerProducts возвращает матрицу наличия товаров по ресторанам.
func (h *Handler) ManagerProducts(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsManagerRequest(r.Context()) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	restaurants, rows, err := h.service.GetProductsAvailability(r.Context())
	if err != nil {
		h.logger.Error("products availability error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := availabilityMatrixResponse{
		Restaurants: make([]restaurantResponse, 0, len(restaurants)),
		Products:    make([]productAvailabilityResponse, 0, len(rows)),
	}
	for _, rest := range restaurants {
		resp.Restaurants = append(resp.Restaurants, restaurantResponse{
			ID:      rest.ID,
			Name:    rest.Name,
			Address: rest.Address,
		})
	}
	for _, row := range rows {
		resp.Products = append(resp.Products, productAvailabilityResponse{
			ID:           row.Product.ID,
			Name:         row.Product.Name,
			Price:        float64(row.Product.PriceCents) / 100,
			Availability: row.Availability,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
