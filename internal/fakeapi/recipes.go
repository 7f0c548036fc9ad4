package fakeapi

import "github.com/naveenspark/larder/pkg/domain"

func defaultRecipes() []domain.Recipe {
	return []domain.Recipe{
		{ID: "1", Title: "Shakshuka", Price: 8.00, Time: "30 min", Servings: 2},
		{ID: "2", Title: "Red lentil dal", Price: 6.25, Time: "40 min", Servings: 4},
		{ID: "3", Title: "Mushroom risotto", Price: 11.50, Time: "45 min", Servings: 2},
		{ID: "4", Title: "Chicken katsu curry", Price: 12.00, Time: "50 min", Servings: 2},
		{ID: "5", Title: "Miso salmon bowl", Price: 13.75, Time: "25 min", Servings: 1},
		{ID: "6", Title: "Banana bread", Price: 5.00, Time: "1 h 10 min", Servings: 8},
	}
}
