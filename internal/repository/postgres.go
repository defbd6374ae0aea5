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
	"github.com/shopspring/decimal"

	"github.com/Tobikorais/Mealy/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const mealColumns = `id, name, description, price::text, category, rating, cook_time`

const orderColumns = `id, customer_name, meal, price::text, display_time, status,
	delivery_date, delivery_time, delivery_location, delivery_house_number,
	delivery_phone, delivery_notes, created_at`

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

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
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

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, username string, passwordHash []byte, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		username, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`,
		username,
	)

	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.ParseRole(role)

	return &u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeal(row scanner) (model.Meal, error) {
	var (
		m     model.Meal
		price string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &price, &m.Category, &m.Rating, &m.CookTime); err != nil {
		return model.Meal{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Meal{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	m.Price = p
	return m, nil
}

// ListMeals возвращает все позиции меню в порядке добавления.
func (r *PostgresRepository) ListMeals(ctx context.Context) ([]model.Meal, error) {
	var meals []model.Meal
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+mealColumns+` FROM meals ORDER BY id`)
		if err != nil {
			return fmt.Errorf("select meals: %w", err)
		}
		defer rows.Close()

		meals = make([]model.Meal, 0)
		for rows.Next() {
			m, err := scanMeal(rows)
			if err != nil {
				return fmt.Errorf("scan meal: %w", err)
			}
			meals = append(meals, m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meals, nil
}

// GetMealByName возвращает первую позицию меню с указанным названием.
func (r *PostgresRepository) GetMealByName(ctx context.Context, name string) (*model.Meal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+mealColumns+` FROM meals WHERE name = $1 ORDER BY id LIMIT 1`,
		name,
	)
	m, err := scanMeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMealNotFound
		}
		return nil, fmt.Errorf("get meal: %w", err)
	}
	return &m, nil
}

// CreateMeal сохраняет позицию меню и возвращает её с присвоенным идентификатором.
func (r *PostgresRepository) CreateMeal(ctx context.Context, meal model.Meal) (*model.Meal, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO meals (name, description, price, category, rating, cook_time)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)
		 RETURNING `+mealColumns,
		meal.Name, meal.Description, meal.Price.String(), meal.Category, meal.Rating, meal.CookTime,
	)
	m, err := scanMeal(row)
	if err != nil {
		return nil, fmt.Errorf("insert meal: %w", err)
	}
	return &m, nil
}

// DeleteMeal удаляет позицию меню. Отсутствие позиции ошибкой не считается.
func (r *PostgresRepository) DeleteMeal(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM meals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete meal: %w", err)
	}
	return nil
}

func scanOrder(row scanner) (model.Order, error) {
	var (
		o      model.Order
		price  string
		status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerName, &o.Meal, &price, &o.Time, &status,
		&o.Delivery.Date, &o.Delivery.Time, &o.Delivery.Location, &o.Delivery.HouseNumber,
		&o.Delivery.Phone, &o.Delivery.Notes, &o.CreatedAt,
	)
	if err != nil {
		return model.Order{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Order{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	st, err := model.ParseOrderStatus(status)
	if err != nil {
		return model.Order{}, err
	}
	o.Price = p
	o.Status = st
	return o, nil
}

// CreateOrder сохраняет заказ и возвращает его с присвоенным идентификатором.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.Order) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO orders (customer_name, meal, price, display_time, status,
			delivery_date, delivery_time, delivery_location, delivery_house_number,
			delivery_phone, delivery_notes, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+orderColumns,
		order.CustomerName, order.Meal, order.Price.String(), order.Time, string(order.Status),
		order.Delivery.Date, order.Delivery.Time, order.Delivery.Location, order.Delivery.HouseNumber,
		order.Delivery.Phone, order.Delivery.Notes, order.CreatedAt,
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	var orders []model.Order
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		defer rows.Close()

		orders = make([]model.Order, 0)
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			orders = append(orders, o)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders возвращает все заказы, последний созданный идёт последним.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

// ListOrdersByCustomer возвращает заказы указанного клиента.
func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerName string) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_name = $1 ORDER BY id`,
		customerName,
	)
}

// UpdateOrderStatus атомарно проверяет переход и меняет статус заказа.
// Возвращает признак того, что статус действительно изменился.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("lock order: %w", err)
	}

	if err := current.Status.CanTransitionTo(status); err != nil {
		return nil, false, err
	}

	if current.Status == status {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit tx: %w", err)
		}
		return &current, false, nil
	}

	updated, err := scanOrder(tx.QueryRow(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 RETURNING `+orderColumns,
		id, string(status),
	))
	if err != nil {
		return nil, false, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}

	return &updated, true, nil
}
