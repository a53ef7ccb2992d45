package qdrant

import (
	"strings"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/poiesic/etoile/core"
)

func toPoint(r *core.RestaurantRecord) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Num{Num: uint64(r.ID)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: r.Vector},
			},
		},
		Payload: toPayload(r),
	}
}

func toPayload(r *core.RestaurantRecord) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"name":               stringValue(r.Name),
		"address":            stringValue(r.Address),
		"country":            stringValue(r.Country),
		"iso_code":           stringValue(r.ISOCode),
		"cuisine":            stringValue(r.Cuisine),
		"description":        stringValue(r.Description),
		"country_key":        stringValue(strings.ToLower(r.Country)),
		"iso_code_key":       stringValue(strings.ToLower(r.ISOCode)),
		"cuisine_key":        stringValue(strings.ToLower(r.Cuisine)),
		"stars":              intValue(int64(r.Stars)),
		"price_symbol_count": intValue(int64(r.PriceSymbolCount)),
		"description_hash":   intValue(int64(r.DescriptionHash)),
	}
	if r.Location != nil {
		payload["lat"] = doubleValue(r.Location.Lat)
		payload["lng"] = doubleValue(r.Location.Lng)
	}
	return payload
}

func fromPayload(id uint64, payload map[string]*pb.Value) *core.RestaurantRecord {
	r := &core.RestaurantRecord{
		ID:               core.ID(id),
		Name:             payload["name"].GetStringValue(),
		Address:          payload["address"].GetStringValue(),
		Country:          payload["country"].GetStringValue(),
		ISOCode:          payload["iso_code"].GetStringValue(),
		Cuisine:          payload["cuisine"].GetStringValue(),
		Description:      payload["description"].GetStringValue(),
		Stars:            core.StarsNone,
		PriceSymbolCount: int(payload["price_symbol_count"].GetIntegerValue()),
		DescriptionHash:  uint64(payload["description_hash"].GetIntegerValue()),
	}
	if v, ok := payload["stars"]; ok {
		r.Stars = core.Stars(v.GetIntegerValue())
	}
	lat, hasLat := payload["lat"]
	lng, hasLng := payload["lng"]
	if hasLat && hasLng {
		r.Location = &core.Location{Lat: lat.GetDoubleValue(), Lng: lng.GetDoubleValue()}
	}
	return r
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: i}}
}

func doubleValue(f float64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
}
