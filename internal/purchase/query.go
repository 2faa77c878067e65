package purchase

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"sort"
	"strconv"
)

// ErrUnknownField is returned for fields that have no distinct-value index
var ErrUnknownField = errors.New("unknown field")

// Field names a record attribute with a distinct-value index
type Field string

const (
	FieldShop    Field = "shop"
	FieldFlavor  Field = "flavor"
	FieldCupSize Field = "cupSize"
)

// value returns the attribute of r that f names
func (f Field) value(r PurchaseRecord) (string, error) {
	switch f {
	case FieldShop:
		return r.Shop, nil
	case FieldFlavor:
		return r.Flavor, nil
	case FieldCupSize:
		return r.CupSize, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, string(f))
}

// FilterAndSort returns the records matching c, most recently created first.
// Records created at the same instant keep their collection order.
func FilterAndSort(records []PurchaseRecord, c FilterCriteria) []PurchaseRecord {
	out := make([]PurchaseRecord, 0, len(records))
	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DistinctValues returns the sorted, deduplicated values of field across records
func DistinctValues(records []PurchaseRecord, field Field) ([]string, error) {
	seen := make(map[string]struct{}, len(records))
	values := make([]string, 0)
	for _, r := range records {
		v, err := field.value(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	slices.Sort(values)
	return values, nil
}

// Aggregate counts records and sums their prices. Everything is zero for no records.
func Aggregate(records []PurchaseRecord) Stats {
	if len(records) == 0 {
		return Stats{}
	}
	var total float64
	for _, r := range records {
		total += r.Price
	}
	return Stats{
		Count:        len(records),
		TotalPrice:   total,
		AveragePrice: total / float64(len(records)),
	}
}

// ParseFilterCriteria reads criteria from query parameters
// (shop, flavor, cupSize, minPrice, maxPrice). Empty parameters are unconstrained.
func ParseFilterCriteria(q url.Values) (FilterCriteria, error) {
	var c FilterCriteria

	optString := func(key string) *string {
		if v := q.Get(key); v != "" {
			return &v
		}
		return nil
	}
	optFloat := func(key string) (*float64, error) {
		v := q.Get(key)
		if v == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && math.IsNaN(f) {
			err = errors.New("not a number")
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return &f, nil
	}

	c.Shop = optString("shop")
	c.Flavor = optString("flavor")
	c.CupSize = optString("cupSize")

	var err error
	if c.MinPrice, err = optFloat("minPrice"); err != nil {
		return FilterCriteria{}, err
	}
	if c.MaxPrice, err = optFloat("maxPrice"); err != nil {
		return FilterCriteria{}, err
	}
	return c, nil
}
