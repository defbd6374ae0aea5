package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Tobikorais/Mealy/internal/model"
	"github.com/Tobikorais/Mealy/internal/repository"
)

type demoMeal struct {
	name, description, price, category, cookTime string
	rating                                       float64
}

var demoMeals = []demoMeal{
	{"Grilled Chicken Bowl", "Grilled chicken breast with quinoa, roasted vegetables, and herb sauce", "15.99", "Protein Bowl", "25 min", 4.8},
	{"Mediterranean Salmon", "Pan-seared salmon with couscous, cucumber salad, and tzatziki", "18.99", "Seafood", "30 min", 4.9},
	{"Veggie Power Bowl", "Roasted sweet potato, chickpeas, avocado, and tahini dressing", "13.99", "Vegetarian", "20 min", 4.7},
	{"BBQ Beef Brisket", "Slow-cooked beef brisket with mashed potatoes and coleslaw", "19.99", "BBQ", "35 min", 4.6},
}

// SeedDemo заполняет пустое хранилище демонстрационными учётными записями
// admin/admin и customer/customer и стартовым меню.
func (s *Service) SeedDemo(ctx context.Context) error {
	accounts := []struct {
		username string
		role     model.Role
	}{
		{"admin", model.RoleAdmin},
		{"customer", model.RoleCustomer},
	}
	for _, a := range accounts {
		if _, err := s.RegisterUser(ctx, a.username, a.username, a.role); err != nil && !errors.Is(err, repository.ErrUserExists) {
			return fmt.Errorf("seed user %s: %w", a.username, err)
		}
	}

	meals, err := s.repo.ListMeals(ctx)
	if err != nil {
		return fmt.Errorf("list meals: %w", err)
	}
	if len(meals) > 0 {
		return nil
	}

	for _, m := range demoMeals {
		price := decimal.RequireFromString(m.price)
		rating := m.rating
		_, err := s.CreateMeal(ctx, model.MealInput{
			Name:        m.name,
			Description: m.description,
			Price:       &price,
			Category:    m.category,
			Rating:      &rating,
			CookTime:    m.cookTime,
		})
		if err != nil {
			return fmt.Errorf("seed meal %s: %w", m.name, err)
		}
	}
	return nil
}
