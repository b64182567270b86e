package catalog

import "hexidle/internal/economy"

// Upgrade is one purchasable item. Requires is empty when there is no
// prerequisite; MaxQuantity 0 means unlimited.
type Upgrade struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Cost        economy.Resources `json:"cost"`
	Effect      economy.Resources `json:"effect"`
	Requires    string            `json:"requires,omitempty"`
	MaxQuantity int               `json:"max_quantity,omitempty"`
}

func defaultUpgrades() []Upgrade {
	return []Upgrade{
		{
			ID:          "wooden_pickaxe",
			Name:        "Wooden Pickaxe",
			Description: "A crude tool for mining gold.",
			Category:    "gold",
			Cost:        economy.NewResources(10, 0, 0),
			Effect:      economy.NewResources(0.5, 0, 0),
			MaxQuantity: 1,
		},
		{
			ID:          "iron_pickaxe",
			Name:        "Iron Pickaxe",
			Description: "A sturdy iron pickaxe. Much more efficient.",
			Category:    "gold",
			Cost:        economy.NewResources(75, 0, 0),
			Effect:      economy.NewResources(2, 0, 0),
			Requires:    "wooden_pickaxe",
			MaxQuantity: 1,
		},
		{
			ID:          "gold_mine",
			Name:        "Gold Mine",
			Description: "A dedicated mine for extracting gold ore.",
			Category:    "gold",
			Cost:        economy.NewResources(500, 0, 100),
			Effect:      economy.NewResources(10, 0, 0),
			Requires:    "iron_pickaxe",
			MaxQuantity: 5,
		},
		{
			ID:          "hand_axe",
			Name:        "Hand Axe",
			Description: "Chop wood with your bare hands... sort of.",
			Category:    "wood",
			Cost:        economy.NewResources(15, 0, 0),
			Effect:      economy.NewResources(0, 0.5, 0),
			MaxQuantity: 1,
		},
		{
			ID:          "lumber_camp",
			Name:        "Lumber Camp",
			Description: "A camp of workers who do nothing but chop trees.",
			Category:    "wood",
			Cost:        economy.NewResources(120, 50, 0),
			Effect:      economy.NewResources(0, 3, 0),
			Requires:    "hand_axe",
			MaxQuantity: 5,
		},
		{
			ID:          "stone_chisel",
			Name:        "Stone Chisel",
			Description: "Chip away at rocks for stone.",
			Category:    "stone",
			Cost:        economy.NewResources(20, 0, 0),
			Effect:      economy.NewResources(0, 0, 0.4),
			MaxQuantity: 1,
		},
		{
			ID:          "quarry",
			Name:        "Quarry",
			Description: "A massive open pit that produces stone endlessly.",
			Category:    "stone",
			Cost:        economy.NewResources(300, 0, 50),
			Effect:      economy.NewResources(0, 0, 4),
			Requires:    "stone_chisel",
			MaxQuantity: 3,
		},
	}
}
