package catalog

import "hexidle/internal/economy"

// TileType is one entry of the tile catalog.
type TileType struct {
	Type        string            `json:"type"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Bonus       economy.Resources `json:"bonus"`
	Impassable  bool              `json:"impassable"`
}

func defaultTiles() []TileType {
	return []TileType{
		{
			Type:        "plains",
			Label:       "Plains",
			Description: "Open grassland. Balanced resource production.",
			Bonus:       economy.NewResources(0.2, 0.1, 0.1),
		},
		{
			Type:        "forest",
			Label:       "Forest",
			Description: "Dense woodland. Excellent for timber.",
			Bonus:       economy.NewResources(0.1, 0.8, 0),
		},
		{
			Type:        "mountain",
			Label:       "Mountain",
			Description: "Rocky peaks rich with stone and ore.",
			Bonus:       economy.NewResources(0.3, 0, 0.8),
		},
		{
			Type:        "goldvein",
			Label:       "Gold Vein",
			Description: "A glittering seam of gold ore.",
			Bonus:       economy.NewResources(1.2, 0, 0.1),
		},
		{
			Type:        "lake",
			Label:       "Lake",
			Description: "A tranquil lake. No resources, but peaceful.",
			Bonus:       economy.NewResources(0, 0, 0),
			Impassable:  true,
		},
		{
			Type:        "swamp",
			Label:       "Swamp",
			Description: "Murky wetlands. Slow going but rich in rare herbs.",
			Bonus:       economy.NewResources(0.5, 0.3, 0),
		},
		{
			Type:        "ruins",
			Label:       "Ancient Ruins",
			Description: "Crumbling remnants of a lost civilisation. High gold yield.",
			Bonus:       economy.NewResources(1.0, 0, 0.3),
		},
		{
			Type:        "village",
			Label:       "Village",
			Description: "A small settlement. Good all-round production.",
			Bonus:       economy.NewResources(0.4, 0.4, 0.2),
		},
	}
}
