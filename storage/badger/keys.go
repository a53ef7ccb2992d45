package badger

import (
	"encoding/binary"

	"github.com/poiesic/etoile/core"
)

// Key prefixes for different data types
const (
	restaurantPrefix = "resrec:"
	manifestKey      = "embmanifest"
)

// makeRestaurantKey generates a key for a restaurant record by ID.
// Format: prefix + big-endian ID, so iteration order is ascending ID.
func makeRestaurantKey(id core.ID) []byte {
	buf := make([]byte, len(restaurantPrefix)+8)
	offset := copy(buf, restaurantPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// restaurantIDFromKey extracts the ID from a restaurant key.
func restaurantIDFromKey(key []byte) (core.ID, bool) {
	if len(key) != len(restaurantPrefix)+8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[len(restaurantPrefix):])), true
}
