package purchase

import "time"

// PurchaseRecord is one logged coffee purchase
type PurchaseRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Date      string    `json:"date"`
	Shop      string    `json:"shop"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Capacity  string    `json:"capacity"`
	Flavor    string    `json:"flavor"`
	CupSize   string    `json:"cupSize"`
	Notes     string    `json:"notes,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"` // self-contained data URL
}

// RecordInput holds the caller-supplied fields of a new record
type RecordInput struct {
	Date     string  `json:"date"`
	Shop     string  `json:"shop"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Capacity string  `json:"capacity"`
	Flavor   string  `json:"flavor"`
	CupSize  string  `json:"cupSize"`
	Notes    string  `json:"notes,omitempty"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// RecordPatch is a partial update; nil fields are left untouched.
// ID and CreatedAt cannot be patched.
type RecordPatch struct {
	Date     *string  `json:"date,omitempty"`
	Shop     *string  `json:"shop,omitempty"`
	Name     *string  `json:"name,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Capacity *string  `json:"capacity,omitempty"`
	Flavor   *string  `json:"flavor,omitempty"`
	CupSize  *string  `json:"cupSize,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
	ImageURL *string  `json:"imageUrl,omitempty"`
}

// apply merges the patch into r
func (p RecordPatch) apply(r *PurchaseRecord) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&r.Date, p.Date)
	setString(&r.Shop, p.Shop)
	setString(&r.Name, p.Name)
	setString(&r.Capacity, p.Capacity)
	setString(&r.Flavor, p.Flavor)
	setString(&r.CupSize, p.CupSize)
	setString(&r.Notes, p.Notes)
	setString(&r.ImageURL, p.ImageURL)
	if p.Price != nil {
		r.Price = *p.Price
	}
}

// FilterCriteria selects records; nil fields are unconstrained
type FilterCriteria struct {
	Shop     *string  `json:"shop,omitempty"`
	Flavor   *string  `json:"flavor,omitempty"`
	CupSize  *string  `json:"cupSize,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
}

// Matches reports whether r satisfies every set criterion.
// Strings compare exactly and price bounds are inclusive.
func (c FilterCriteria) Matches(r PurchaseRecord) bool {
	if c.Shop != nil && r.Shop != *c.Shop {
		return false
	}
	if c.Flavor != nil && r.Flavor != *c.Flavor {
		return false
	}
	if c.CupSize != nil && r.CupSize != *c.CupSize {
		return false
	}
	if c.MinPrice != nil && r.Price < *c.MinPrice {
		return false
	}
	if c.MaxPrice != nil && r.Price > *c.MaxPrice {
		return false
	}
	return true
}

// Stats summarizes a set of records
type Stats struct {
	Count        int     `json:"count"`
	TotalPrice   float64 `json:"totalPrice"`
	AveragePrice float64 `json:"averagePrice"`
}
