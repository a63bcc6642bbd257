package domain

import "time"

// Product represents a tracked item/brand price
type Product struct {
	ID        int64     `json:"id" db:"id"`
	ItemName  string    `json:"item_name" db:"item_name"`
	BrandName string    `json:"brand_name" db:"brand_name"`
	Price     float64   `json:"price" db:"price"`
	PrevPrice float64   `json:"prev_price" db:"prev_price"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProductInput is the client-supplied part of a product
type ProductInput struct {
	ItemName  string  `json:"item_name" validate:"required"`
	BrandName string  `json:"brand_name" validate:"required"`
	Price     float64 `json:"price"`
}

// Trend describes the direction of the last price change
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Trend compares the current price with the previous one
func (p *Product) Trend() Trend {
	switch {
	case p.Price > p.PrevPrice:
		return TrendUp
	case p.Price < p.PrevPrice:
		return TrendDown
	default:
		return TrendFlat
	}
}

// BrandPrice is one brand row inside an ItemGroup
type BrandPrice struct {
	ID        int64     `json:"id"`
	BrandName string    `json:"brand_name"`
	Price     float64   `json:"price"`
	PrevPrice float64   `json:"prev_price"`
	Trend     Trend     `json:"trend"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemGroup collects all brands of one item
type ItemGroup struct {
	ItemName string       `json:"item_name"`
	Brands   []BrandPrice `json:"brands"`
}

// GroupByItem groups products by item name, keeping the input order
func GroupByItem(products []*Product) []ItemGroup {
	groups := []ItemGroup{}
	index := make(map[string]int)

	for _, p := range products {
		i, ok := index[p.ItemName]
		if !ok {
			i = len(groups)
			index[p.ItemName] = i
			groups = append(groups, ItemGroup{ItemName: p.ItemName})
		}
		groups[i].Brands = append(groups[i].Brands, BrandPrice{
			ID:        p.ID,
			BrandName: p.BrandName,
			Price:     p.Price,
			PrevPrice: p.PrevPrice,
			Trend:     p.Trend(),
			UpdatedAt: p.UpdatedAt,
		})
	}

	return groups
}
