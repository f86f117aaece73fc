package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Romigo24/star-burger/internal/matcher"
	"github.com/Romigo24/star-burger/internal/middleware"
	"github.com/Romigo24/star-burger/internal/model"
	"github.com/Romigo24/star-burger/internal/repository"
	"github.com/Romigo24/star-burger/internal/service"
)

type stubService struct {
	registerOrderID  int64
	registerOrderErr error
	registeredOrder  *model.Order

	rankedResp []matcher.OrderRank
	rankedErr  error

	assignErr error

	statusErr error

	productsResp []model.Product
	productsErr  error

	restaurantsResp []model.Restaurant

	availabilityRows []service.ProductAvailability
}

func (s *stubService) RegisterOrder(ctx context.Context, order *model.Order) (int64, error) {
	s.registeredOrder = order
	return s.registerOrderID, s.registerOrderErr
}

func (s *stubService) RankedOrders(ctx context.Context) ([]matcher.OrderRank, error) {
	return s.rankedResp, s.rankedErr
}

func (s *stubService) AssignRestaurant(ctx context.Context, orderID, restaurantID int64) error {
	return s.assignErr
}

func (s *stubService) AdvanceOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return s.statusErr
}

func (s *stubService) GetAvailableProducts(ctx context.Context) ([]model.Product, error) {
	return s.productsResp, s.productsErr
}

func (s *stubService) GetRestaurants(ctx context.Context) ([]model.Restaurant, error) {
	return s.restaurantsResp, nil
}

func (s *stubService) GetProductsAvailability(ctx context.Context) ([]model.Restaurant, []service.ProductAvailability, error) {
	return s.restaurantsResp, s.availabilityRows, nil
}

func newTestHandler(svc Service) (*Handler, *middleware.AuthMiddleware) {
	auth := middleware.NewAuthMiddleware("test-secret")
	return NewHandler(svc, zap.NewNop(), auth, "manager-pass"), auth
}

func managerCookie(auth *middleware.AuthMiddleware) *http.Cookie {
	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec)
	return rec.Result().Cookies()[0]
}

func TestRegisterOrder_Created(t *testing.T) {
	svc := &stubService{registerOrderID: 7}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	body := `{
		"firstname": "Иван",
		"lastname": "Петров",
		"phonenumber": "+79991234567",
		"address": "Москва, Тверская 1",
		"products": [{"product": 1, "quantity": 2}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/order", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != 7 {
		t.Fatalf("id = %d, want 7", resp["id"])
	}

	if svc.registeredOrder == nil || len(svc.registeredOrder.Items) != 1 {
		t.Fatalf("unexpected registered order: %+v", svc.registeredOrder)
	}
	if svc.registeredOrder.Items[0].ProductID != 1 || svc.registeredOrder.Items[0].Quantity != 2 {
		t.Fatalf("unexpected order item: %+v", svc.registeredOrder.Items[0])
	}
}

func TestRegisterOrder_InvalidPhone(t *testing.T) {
	h, _ := newTestHandler(&stubService{})
	router := h.SetupRouter()

	body := `{
		"firstname": "Иван",
		"lastname": "Петров",
		"phonenumber": "12345",
		"address": "Москва",
		"products": [{"product": 1, "quantity": 1}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/order", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestRegisterOrder_EmptyProducts(t *testing.T) {
	h, _ := newTestHandler(&stubService{})
	router := h.SetupRouter()

	body := `{
		"firstname": "Иван",
		"lastname": "Петров",
		"phonenumber": "+79991234567",
		"address": "Москва",
		"products": []
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/order", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestManagerOrders_Unauthorized(t *testing.T) {
	h, _ := newTestHandler(&stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/manager/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestManagerOrders_OK(t *testing.T) {
	distance := 12.81
	svc := &stubService{
		rankedResp: []matcher.OrderRank{
			{
				Order: model.Order{
					ID:          1,
					Firstname:   "Иван",
					Lastname:    "Петров",
					Phonenumber: "+79991234567",
					Address:     "Москва",
					Status:      model.OrderStatusUnprocessed,
					Payment:     model.PaymentCash,
					CreatedAt:   time.Now(),
					TotalCents:  150050,
				},
				Suitable: []matcher.RankedRestaurant{
					{Restaurant: model.Restaurant{ID: 1, Name: "X"}, DistanceKm: &distance},
				},
			},
			{
				Order:        model.Order{ID: 2, Address: "неизвестно", Status: model.OrderStatusUnprocessed},
				GeocodeError: true,
				Suitable: []matcher.RankedRestaurant{
					{Restaurant: model.Restaurant{ID: 1, Name: "X"}},
				},
			},
		},
	}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/manager/orders", nil)
	req.AddCookie(managerCookie(auth))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp []rankedOrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("orders = %d, want 2", len(resp))
	}

	if resp[0].Total != 1500.5 {
		t.Fatalf("total = %v, want 1500.5", resp[0].Total)
	}
	if resp[0].Restaurants[0].DistanceKm == nil || *resp[0].Restaurants[0].DistanceKm != 12.81 {
		t.Fatalf("distance = %v, want 12.81", resp[0].Restaurants[0].DistanceKm)
	}

	if !resp[1].GeocodeError {
		t.Fatalf("expected geocode_error for second order")
	}
	if resp[1].Restaurants[0].DistanceKm != nil {
		t.Fatalf("degraded order must carry null distances")
	}
}

func TestAssignRestaurant_OrderNotFound(t *testing.T) {
	svc := &stubService{assignErr: repository.ErrOrderNotFound}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/manager/orders/99/restaurant",
		bytes.NewBufferString(`{"restaurant_id": 1}`))
	req.AddCookie(managerCookie(auth))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAssignRestaurant_OK(t *testing.T) {
	h, auth := newTestHandler(&stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/manager/orders/1/restaurant",
		bytes.NewBufferString(`{"restaurant_id": 2}`))
	req.AddCookie(managerCookie(auth))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	svc := &stubService{statusErr: repository.ErrInvalidTransition}
	h, auth := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/manager/orders/1/status",
		bytes.NewBufferString(`{"status": "confirmed"}`))
	req.AddCookie(managerCookie(auth))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	h, auth := newTestHandler(&stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/manager/orders/1/status",
		bytes.NewBufferString(`{"status": "shipped"}`))
	req.AddCookie(managerCookie(auth))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestManagerLogin(t *testing.T) {
	h, _ := newTestHandler(&stubService{})
	router := h.SetupRouter()

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/manager/login",
			bytes.NewBufferString(`{"password": "wrong"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("correct password sets cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/manager/login",
			bytes.NewBufferString(`{"password": "manager-pass"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if len(rec.Result().Cookies()) == 0 {
			t.Fatalf("no auth cookie set")
		}
	})
}

func TestGetProducts_ConvertsPrice(t *testing.T) {
	svc := &stubService{
		productsResp: []model.Product{
			{ID: 1, Name: "Бургер", PriceCents: 35050},
		},
	}
	h, _ := newTestHandler(svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp []productResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Price != 350.5 {
		t.Fatalf("unexpected products: %+v", resp)
	}
}
