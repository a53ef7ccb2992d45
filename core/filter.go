package core

import "strings"

// Filter restricts a query to restaurants matching relational criteria.
// Zero values mean "no restriction"; Stars uses StarsNone for that.
type Filter struct {
	Country  string
	ISOCode  string
	Cuisine  string
	Stars    []Stars // any of; empty means all
	MinPrice int     // inclusive, 0 means unbounded
	MaxPrice int     // inclusive, 0 means unbounded
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return f.Country == "" && f.ISOCode == "" && f.Cuisine == "" &&
		len(f.Stars) == 0 && f.MinPrice == 0 && f.MaxPrice == 0
}

// Matches reports whether the record satisfies every criterion of the filter.
// Text comparisons are case-insensitive.
func (f Filter) Matches(r *RestaurantRecord) bool {
	if r == nil {
		return false
	}
	if f.Country != "" && !strings.EqualFold(f.Country, r.Country) {
		return false
	}
	if f.ISOCode != "" && !strings.EqualFold(f.ISOCode, r.ISOCode) {
		return false
	}
	if f.Cuisine != "" && !strings.EqualFold(f.Cuisine, r.Cuisine) {
		return false
	}
	if len(f.Stars) > 0 {
		found := false
		for _, s := range f.Stars {
			if s == r.Stars {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinPrice > 0 && r.PriceSymbolCount < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && r.PriceSymbolCount > f.MaxPrice {
		return false
	}
	return true
}
