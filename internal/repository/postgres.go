// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Romigo24/star-burger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ не найден.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrRestaurantNotFound возвращается, если ресторан не найден.
	ErrRestaurantNotFound = errors.New("restaurant not found")
	// ErrProductNotFound возвращается, если товар из позиции заказа не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidTransition возвращается при попытке перевести заказ в недопустимый статус.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только конфликты сериализации и дедлоки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetOrCreatePlace возвращает место по адресу, создавая пустую запись, если её ещё нет.
// Вставка и чтение выполняются в одной транзакции, поэтому конкурентные запросы
// одного адреса не создают дубликатов.
func (r *PostgresRepository) GetOrCreatePlace(ctx context.Context, address string) (*model.Place, error) {
	var place model.Place

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO places (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
			address,
		)
		if err != nil {
			return fmt.Errorf("insert place: %w", err)
		}

		err = tx.QueryRow(ctx,
			`SELECT address, lat, lon FROM places WHERE address = $1`,
			address,
		).Scan(&place.Address, &place.Lat, &place.Lon)
		if err != nil {
			return fmt.Errorf("select place: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &place, nil
}

// UpdatePlaceCoordinates записывает координаты места. Уже разрешённое место
// не перезаписывается.
func (r *PostgresRepository) UpdatePlaceCoordinates(ctx context.Context, address string, point model.Point) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE places SET lat = $2, lon = $3 WHERE address = $1 AND lat IS NULL AND lon IS NULL`,
		address, point.Lat, point.Lon,
	)
	if err != nil {
		return fmt.Errorf("update place: %w", err)
	}
	return nil
}

// GetUnresolvedAddresses возвращает адреса без координат для фоновой повторной попытки.
func (r *PostgresRepository) GetUnresolvedAddresses(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT address FROM places WHERE lat IS NULL ORDER BY address LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unresolved places: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		res = append(res, address)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateOrder сохраняет заказ с позициями. Цена каждой позиции фиксируется
// из текущей цены товара в той же транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (firstname, lastname, phonenumber, address, payment, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		order.Firstname, order.Lastname, order.Phonenumber, order.Address,
		string(order.Payment), order.Comment,
	).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price)
			 SELECT $1, id, $3, price FROM products WHERE id = $2`,
			orderID, item.ProductID, item.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return 0, fmt.Errorf("%w: id %d", ErrProductNotFound, item.ProductID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return orderID, nil
}

// GetOpenOrders возвращает незавершённые заказы с позициями и итоговой суммой,
// новые заказы первыми.
func (r *PostgresRepository) GetOpenOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, firstname, lastname, phonenumber, address, status, payment, comment,
		        created_at, called_at, delivered_at, restaurant_id
		 FROM orders
		 WHERE status <> $1
		 ORDER BY id DESC`,
		string(model.OrderStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	index := make(map[int64]int)

	for rows.Next() {
		var (
			o      model.Order
			status string
			pay    string
		)
		if err := rows.Scan(&o.ID, &o.Firstname, &o.Lastname, &o.Phonenumber, &o.Address,
			&status, &pay, &o.Comment, &o.CreatedAt, &o.CalledAt, &o.DeliveredAt, &o.RestaurantID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		o.Payment = model.PaymentMethod(pay)

		index[o.ID] = len(orders)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT oi.order_id, oi.product_id, oi.quantity, oi.price
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.status <> $1
		 ORDER BY oi.id`,
		string(model.OrderStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID int64
			item    model.OrderItem
		)
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.PriceCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		i, ok := index[orderID]
		if !ok {
			continue
		}
		orders[i].Items = append(orders[i].Items, item)
		orders[i].TotalCents += item.PriceCents * int64(item.Quantity)
	}

	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetRestaurants возвращает все рестораны, упорядоченные по идентификатору.
func (r *PostgresRepository) GetRestaurants(ctx context.Context) ([]model.Restaurant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, address, contact_phone FROM restaurants ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select restaurants: %w", err)
	}
	defer rows.Close()

	var res []model.Restaurant
	for rows.Next() {
		var rest model.Restaurant
		if err := rows.Scan(&rest.ID, &rest.Name, &rest.Address, &rest.ContactPhone); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		res = append(res, rest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetMenuItems возвращает позиции меню всех ресторанов. При onlyAvailable
// возвращаются только позиции в наличии.
func (r *PostgresRepository) GetMenuItems(ctx context.Context, onlyAvailable bool) ([]model.MenuItem, error) {
	query := `SELECT restaurant_id, product_id, availability FROM menu_items`
	if onlyAvailable {
		query += ` WHERE availability = TRUE`
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select menu items: %w", err)
	}
	defer rows.Close()

	var res []model.MenuItem
	for rows.Next() {
		var item model.MenuItem
		if err := rows.Scan(&item.RestaurantID, &item.ProductID, &item.Availability); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetProducts возвращает товары каталога. При onlyAvailable возвращаются только
// товары, присутствующие хотя бы в одном меню с признаком наличия.
func (r *PostgresRepository) GetProducts(ctx context.Context, onlyAvailable bool) ([]model.Product, error) {
	query := `SELECT id, name, category, price, description, special_status FROM products`
	if onlyAvailable {
		query += ` WHERE id IN (SELECT product_id FROM menu_items WHERE availability = TRUE)`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Description, &p.SpecialStatus); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AssignRestaurant назначает заказу ресторан. Переход необработанного заказа в
// подтверждённый и отметка времени звонка описаны в model.Order.Assign;
// строка заказа блокируется на время применения перехода.
func (r *PostgresRepository) AssignRestaurant(ctx context.Context, orderID, restaurantID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			order  model.Order
			status string
		)
		err = tx.QueryRow(ctx,
			`SELECT id, status, called_at FROM orders WHERE id = $1 FOR UPDATE`,
			orderID,
		).Scan(&order.ID, &status, &order.CalledAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
			}
			return fmt.Errorf("select order: %w", err)
		}
		order.Status = model.OrderStatus(status)

		order.Assign(restaurantID, time.Now())

		_, err = tx.Exec(ctx,
			`UPDATE orders SET restaurant_id = $2, status = $3, called_at = $4 WHERE id = $1`,
			orderID, order.RestaurantID, string(order.Status), order.CalledAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return fmt.Errorf("%w: id %d", ErrRestaurantNotFound, restaurantID)
			}
			return fmt.Errorf("assign restaurant: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// UpdateOrderStatus переводит заказ в указанный статус. Допускаются только
// переходы вперёд по жизненному циклу; завершение заказа отмечает время доставки.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var current string
		err = tx.QueryRow(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
			orderID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
			}
			return fmt.Errorf("select order status: %w", err)
		}

		if !model.CanTransition(model.OrderStatus(current), status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders
			 SET status = $2,
			     delivered_at = CASE WHEN $2 = $3 AND delivered_at IS NULL THEN now() ELSE delivered_at END
			 WHERE id = $1`,
			orderID, string(status), string(model.OrderStatusCompleted),
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}
