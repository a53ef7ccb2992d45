// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package geo ranks restaurants by distance from a point on the map.
package geo

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/etoile/core"
)

// DefaultCount is the number of neighbors returned when n <= 0.
const DefaultCount = 10

// earthRadiusKm is the mean Earth radius used by Haversine.
const earthRadiusKm = 6371.0088

// Metric measures the distance between two locations.
type Metric func(a, b core.Location) float64

// Planar is the Euclidean distance between (lng, lat) pairs in degrees.
// It is an approximation that is consistent for city-scale "nearest to a
// map click" queries but not geodesically correct over large distances.
func Planar(a, b core.Location) float64 {
	return math.Hypot(a.Lng-b.Lng, a.Lat-b.Lat)
}

// Haversine is the great-circle distance in kilometres.
func Haversine(a, b core.Location) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Nearest returns the n candidates closest to point by Planar distance,
// nearest first. Candidates without a location are skipped and equal
// distances keep input order. Fewer than n neighbors are returned when
// fewer candidates qualify; n <= 0 means DefaultCount.
func Nearest(point core.Location, candidates []*core.RestaurantRecord, n int) []core.Neighbor {
	return NearestBy(Planar, point, candidates, n)
}

// NearestBy is Nearest with a caller-chosen metric.
func NearestBy(metric Metric, point core.Location, candidates []*core.RestaurantRecord, n int) []core.Neighbor {
	if n <= 0 {
		n = DefaultCount
	}

	neighbors := make([]core.Neighbor, 0, len(candidates))
	for _, r := range candidates {
		if r == nil || r.Location == nil {
			continue
		}
		d := metric(point, *r.Location)
		if math.IsNaN(d) {
			continue
		}
		neighbors = append(neighbors, core.Neighbor{Record: r, Distance: d})
	}

	slices.SortStableFunc(neighbors, func(a, b core.Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(neighbors) > n {
		neighbors = neighbors[:n]
	}
	return neighbors
}
