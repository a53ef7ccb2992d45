package geo

import (
	"testing"

	"github.com/poiesic/etoile/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(id core.ID, lat, lng float64) *core.RestaurantRecord {
	return &core.RestaurantRecord{ID: id, Name: "r", Location: &core.Location{Lat: lat, Lng: lng}}
}

func neighborIDs(ns []core.Neighbor) []core.ID {
	ids := make([]core.ID, len(ns))
	for i, n := range ns {
		ids[i] = n.Record.ID
	}
	return ids
}

func TestNearest_Order(t *testing.T) {
	origin := core.Location{}
	candidates := []*core.RestaurantRecord{
		at(1, 0.5, 0),
		at(2, 0.05, 0),
		at(3, 0, 0.2),
		{ID: 4, Name: "no location"},
	}

	got := Nearest(origin, candidates, 10)
	assert.Equal(t, []core.ID{2, 3, 1}, neighborIDs(got))
	assert.InDelta(t, 0.05, got[0].Distance, 1e-12)
	for i := 0; i < len(got)-1; i++ {
		assert.LessOrEqual(t, got[i].Distance, got[i+1].Distance)
	}
}

func TestNearest_TiesKeepInputOrder(t *testing.T) {
	origin := core.Location{}
	candidates := []*core.RestaurantRecord{
		at(9, 0.5, 0),
		at(3, -0.5, 0),
		at(5, 0, 0.5),
	}
	got := Nearest(origin, candidates, 3)
	assert.Equal(t, []core.ID{9, 3, 5}, neighborIDs(got))
}

func TestNearest_Limits(t *testing.T) {
	var candidates []*core.RestaurantRecord
	for i := 0; i < 15; i++ {
		candidates = append(candidates, at(core.ID(i), float64(i), 0))
	}

	assert.Len(t, Nearest(core.Location{}, candidates, 3), 3)
	assert.Len(t, Nearest(core.Location{}, candidates, 0), DefaultCount)
	assert.Len(t, Nearest(core.Location{}, candidates, -1), DefaultCount)
	assert.Len(t, Nearest(core.Location{}, candidates[:2], 5), 2)
}

func TestNearest_Empty(t *testing.T) {
	got := Nearest(core.Location{}, nil, 5)
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = Nearest(core.Location{}, []*core.RestaurantRecord{{ID: 1}, nil}, 5)
	assert.Empty(t, got)
}

func TestHaversine(t *testing.T) {
	paris := core.Location{Lat: 48.8566, Lng: 2.3522}
	london := core.Location{Lat: 51.5074, Lng: -0.1278}
	assert.InDelta(t, 343.5, Haversine(paris, london), 1.0)
	assert.Zero(t, Haversine(paris, paris))

	// Near the antimeridian planar distance is misleading.
	east := at(1, 0, 179.9)
	west := at(2, 0, -179.9)
	far := at(3, 0, 178)
	point := core.Location{Lat: 0, Lng: 179.95}
	assert.Equal(t, []core.ID{1, 3, 2}, neighborIDs(Nearest(point, []*core.RestaurantRecord{east, west, far}, 3)))
	assert.Equal(t, []core.ID{1, 2, 3}, neighborIDs(NearestBy(Haversine, point, []*core.RestaurantRecord{east, west, far}, 3)))
}
