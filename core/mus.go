package core

import (
	"errors"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted types. Field order is the wire order;
// append new fields at the end.
var (
	IDMUS         = idMUS{}
	RestaurantMUS = restaurantMUS{}
	ManifestMUS   = manifestMUS{}
)

var errMalformedVector = errors.New("malformed vector length")

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil || length == 0 {
		return nil, n, err
	}
	if length < 0 || length > (len(bs)-n)/4 {
		return nil, n, errMalformedVector
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

type locationMUS struct{}

// A nil location is a single false byte.
func (locationMUS) Marshal(v *Location, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v == nil {
		return n
	}
	n += raw.Float64.Marshal(v.Lat, bs[n:])
	n += raw.Float64.Marshal(v.Lng, bs[n:])
	return n
}

func (locationMUS) Unmarshal(bs []byte) (v *Location, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return nil, n, err
	}
	var (
		loc Location
		n1  int
	)
	loc.Lat, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, n, err
	}
	loc.Lng, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, n, err
	}
	return &loc, n, nil
}

func (locationMUS) Size(v *Location) int {
	size := ord.Bool.Size(v != nil)
	if v != nil {
		size += raw.Float64.Size(v.Lat) + raw.Float64.Size(v.Lng)
	}
	return size
}

type restaurantMUS struct{}

func (restaurantMUS) Marshal(v RestaurantRecord, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(v.Address, bs[n:])
	n += ord.String.Marshal(v.Country, bs[n:])
	n += ord.String.Marshal(v.ISOCode, bs[n:])
	n += ord.String.Marshal(v.Cuisine, bs[n:])
	n += ord.String.Marshal(v.Description, bs[n:])
	n += varint.Int.Marshal(int(v.Stars), bs[n:])
	n += varint.Int.Marshal(v.PriceSymbolCount, bs[n:])
	n += locationMUS{}.Marshal(v.Location, bs[n:])
	n += vectorMUS{}.Marshal(v.Vector, bs[n:])
	n += varint.Uint64.Marshal(v.DescriptionHash, bs[n:])
	return n
}

func (restaurantMUS) Unmarshal(bs []byte) (v RestaurantRecord, n int, err error) {
	var n1 int
	step := func(read int, e error) bool {
		n += read
		err = e
		return err == nil
	}

	v.ID, n1, err = IDMUS.Unmarshal(bs)
	if !step(n1, err) {
		return
	}
	for _, field := range []*string{&v.Name, &v.Address, &v.Country, &v.ISOCode, &v.Cuisine, &v.Description} {
		*field, n1, err = ord.String.Unmarshal(bs[n:])
		if !step(n1, err) {
			return
		}
	}
	var stars int
	stars, n1, err = varint.Int.Unmarshal(bs[n:])
	if !step(n1, err) {
		return
	}
	v.Stars = Stars(stars)
	v.PriceSymbolCount, n1, err = varint.Int.Unmarshal(bs[n:])
	if !step(n1, err) {
		return
	}
	v.Location, n1, err = locationMUS{}.Unmarshal(bs[n:])
	if !step(n1, err) {
		return
	}
	v.Vector, n1, err = vectorMUS{}.Unmarshal(bs[n:])
	if !step(n1, err) {
		return
	}
	v.DescriptionHash, n1, err = varint.Uint64.Unmarshal(bs[n:])
	step(n1, err)
	return
}

func (restaurantMUS) Size(v RestaurantRecord) (size int) {
	size = IDMUS.Size(v.ID)
	for _, s := range []string{v.Name, v.Address, v.Country, v.ISOCode, v.Cuisine, v.Description} {
		size += ord.String.Size(s)
	}
	size += varint.Int.Size(int(v.Stars))
	size += varint.Int.Size(v.PriceSymbolCount)
	size += locationMUS{}.Size(v.Location)
	size += vectorMUS{}.Size(v.Vector)
	size += varint.Uint64.Size(v.DescriptionHash)
	return size
}

type manifestMUS struct{}

func (manifestMUS) Marshal(v EmbeddingManifest, bs []byte) (n int) {
	n = ord.String.Marshal(v.Model, bs)
	n += varint.Int.Marshal(v.Dimension, bs[n:])
	n += varint.Int64.Marshal(v.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

func (manifestMUS) Unmarshal(bs []byte) (v EmbeddingManifest, n int, err error) {
	var n1 int
	v.Model, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Dimension, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var micros int64
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

func (manifestMUS) Size(v EmbeddingManifest) int {
	return ord.String.Size(v.Model) +
		varint.Int.Size(v.Dimension) +
		varint.Int64.Size(v.UpdatedAt.UnixMicro())
}
