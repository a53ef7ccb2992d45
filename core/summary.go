package core

import "sort"

// CountryStats aggregates the restaurants of one country.
type CountryStats struct {
	Country string
	ISOCode string
	Total   int
	ByStars map[Stars]int
}

// SummarizeByCountry counts restaurants per country and per distinction,
// ordered by country name.
func SummarizeByCountry(records []*RestaurantRecord) []*CountryStats {
	byCountry := make(map[string]*CountryStats)
	for _, r := range records {
		if r == nil {
			continue
		}
		stats, ok := byCountry[r.Country]
		if !ok {
			stats = &CountryStats{
				Country: r.Country,
				ISOCode: r.ISOCode,
				ByStars: make(map[Stars]int),
			}
			byCountry[r.Country] = stats
		}
		if stats.ISOCode == "" {
			stats.ISOCode = r.ISOCode
		}
		stats.Total++
		stats.ByStars[r.Stars]++
	}

	result := make([]*CountryStats, 0, len(byCountry))
	for _, stats := range byCountry {
		result = append(result, stats)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Country < result[j].Country
	})
	return result
}
