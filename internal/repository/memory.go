package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Tobikorais/Mealy/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда база данных не настроена.
type MemoryRepository struct {
	mu sync.RWMutex

	users  []model.User
	meals  []model.Meal
	orders []model.Order

	nextUserID  int64
	nextMealID  int64
	nextOrderID int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextUserID:  1,
		nextMealID:  1,
		nextOrderID: 1,
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, username string, passwordHash []byte, role model.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
	}

	u := model.User{
		ID:           r.nextUserID,
		Username:     username,
		PasswordHash: slices.Clone(passwordHash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	r.nextUserID++
	r.users = append(r.users, u)

	return u.ID, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *MemoryRepository) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

// ListMeals возвращает копию меню.
func (r *MemoryRepository) ListMeals(_ context.Context) ([]model.Meal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append(make([]model.Meal, 0, len(r.meals)), r.meals...), nil
}

// GetMealByName возвращает первую позицию меню с указанным названием.
func (r *MemoryRepository) GetMealByName(_ context.Context, name string) (*model.Meal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.meals {
		if m.Name == name {
			return &m, nil
		}
	}
	return nil, ErrMealNotFound
}

// CreateMeal добавляет позицию меню.
func (r *MemoryRepository) CreateMeal(_ context.Context, meal model.Meal) (*model.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meal.ID = r.nextMealID
	r.nextMealID++
	r.meals = append(r.meals, meal)

	return &meal, nil
}

// DeleteMeal удаляет позицию меню. Отсутствие позиции ошибкой не считается.
func (r *MemoryRepository) DeleteMeal(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.meals = slices.DeleteFunc(r.meals, func(m model.Meal) bool {
		return m.ID == id
	})
	return nil
}

// CreateOrder добавляет заказ.
func (r *MemoryRepository) CreateOrder(_ context.Context, order model.Order) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order.ID = r.nextOrderID
	r.nextOrderID++
	r.orders = append(r.orders, order)

	return &order, nil
}

// ListOrders возвращает все заказы в порядке создания.
func (r *MemoryRepository) ListOrders(_ context.Context) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append(make([]model.Order, 0, len(r.orders)), r.orders...), nil
}

// ListOrdersByCustomer возвращает заказы указанного клиента.
func (r *MemoryRepository) ListOrdersByCustomer(_ context.Context, customerName string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Order, 0)
	for _, o := range r.orders {
		if o.CustomerName == customerName {
			res = append(res, o)
		}
	}
	return res, nil
}

// UpdateOrderStatus атомарно проверяет переход и меняет статус заказа.
func (r *MemoryRepository) UpdateOrderStatus(_ context.Context, id int64, status model.OrderStatus) (*model.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.orders {
		o := &r.orders[i]
		if o.ID != id {
			continue
		}
		if err := o.Status.CanTransitionTo(status); err != nil {
			return nil, false, err
		}
		changed := o.Status != status
		o.Status = status
		res := *o
		return &res, changed, nil
	}
	return nil, false, ErrOrderNotFound
}
