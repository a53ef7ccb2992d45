package ingestion

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/poiesic/etoile/core"
)

// Canonical column names of the cleaned corpus file.
const (
	ColumnID          = "UniqueID"
	ColumnName        = "name"
	ColumnAddress     = "address"
	ColumnCountry     = "country"
	ColumnISOCode     = "ISO Code"
	ColumnCuisine     = "food type"
	ColumnStars       = "stars_label"
	ColumnPrice       = "price"
	ColumnDescription = "description"
	ColumnLocation    = "latitude_and_longitude"
	ColumnEmbedding   = "embedding"
)

// columns maps a normalized header to a field. Headers are normalized by
// lowercasing and dropping spaces, underscores and dashes.
var columns = map[string]string{
	"uniqueid":             ColumnID,
	"id":                   ColumnID,
	"name":                 ColumnName,
	"address":              ColumnAddress,
	"country":              ColumnCountry,
	"isocode":              ColumnISOCode,
	"iso":                  ColumnISOCode,
	"foodtype":             ColumnCuisine,
	"cuisine":              ColumnCuisine,
	"cuisinetype":          ColumnCuisine,
	"starslabel":           ColumnStars,
	"stars":                ColumnStars,
	"price":                ColumnPrice,
	"pricesymbolcount":     ColumnPrice,
	"description":          ColumnDescription,
	"latitudeandlongitude": ColumnLocation,
	"location":             ColumnLocation,
	"latitude":             "latitude",
	"lat":                  "latitude",
	"longitude":            "longitude",
	"lng":                  "longitude",
	"embedding":            ColumnEmbedding,
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return unicode.ToLower(r)
	}, strings.TrimSpace(h))
}

// Reader decodes restaurant records from the cleaned corpus CSV.
type Reader struct {
	csv    *csv.Reader
	index  map[string]int
	row    int
	logger *slog.Logger
}

// NewReader reads the header row and returns a Reader positioned at the
// first record. The file must carry at least a name column.
func NewReader(r io.Reader, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		field, ok := columns[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := index[field]; !dup {
			index[field] = i
		}
	}
	if _, ok := index[ColumnName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnName)
	}

	return &Reader{
		csv:    cr,
		index:  index,
		logger: logger.With("component", "csv-reader"),
	}, nil
}

// Read returns the next record, or io.EOF when the file is exhausted.
// Records without a UniqueID get their zero-based row number as ID.
func (r *Reader) Read() (*core.RestaurantRecord, error) {
	fields, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedRow, r.row, err)
	}
	row := r.row
	r.row++

	record, err := r.decode(fields, row)
	if err != nil {
		line, _ := r.csv.FieldPos(0)
		return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
	}
	return record, nil
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]*core.RestaurantRecord, error) {
	var records []*core.RestaurantRecord
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

func (r *Reader) field(fields []string, name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(fields) {
		return ""
	}
	v := strings.TrimSpace(fields[i])
	switch strings.ToLower(v) {
	case "nan", "none", "null", "n/a":
		return ""
	}
	return v
}

func (r *Reader) decode(fields []string, row int) (*core.RestaurantRecord, error) {
	record := &core.RestaurantRecord{
		ID:          core.ID(row),
		Name:        r.field(fields, ColumnName),
		Address:     r.field(fields, ColumnAddress),
		Country:     r.field(fields, ColumnCountry),
		ISOCode:     r.field(fields, ColumnISOCode),
		Cuisine:     r.field(fields, ColumnCuisine),
		Description: r.field(fields, ColumnDescription),
	}

	if raw := r.field(fields, ColumnID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return nil, err
		}
		record.ID = id
	}

	stars, err := ParseStars(r.field(fields, ColumnStars))
	if err != nil {
		return nil, err
	}
	record.Stars = stars

	price, err := ParsePrice(r.field(fields, ColumnPrice))
	if err != nil {
		return nil, err
	}
	record.PriceSymbolCount = price

	record.Location, err = r.location(fields)
	if err != nil {
		return nil, err
	}

	vector, err := core.ParseVector(r.field(fields, ColumnEmbedding))
	if err != nil {
		return nil, err
	}
	switch {
	case vector == nil:
	case !record.HasDescription():
		r.logger.Warn("dropping embedding of restaurant without description", "id", record.ID)
	default:
		record.Vector = vector
		record.DescriptionHash = core.HashDescription(record.Description)
	}

	return record, nil
}

func (r *Reader) location(fields []string) (*core.Location, error) {
	if raw := r.field(fields, ColumnLocation); raw != "" {
		return ParseLocation(raw)
	}
	lat, lng := r.field(fields, "latitude"), r.field(fields, "longitude")
	if lat == "" || lng == "" {
		return nil, nil
	}
	latV, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude %q", core.ErrInvalidLocation, lat)
	}
	lngV, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude %q", core.ErrInvalidLocation, lng)
	}
	return &core.Location{Lat: latV, Lng: lngV}, nil
}

func parseID(raw string) (core.ID, error) {
	// IDs are bounded by math.MaxInt64 so they fit signed SQL columns.
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id >= 0 {
		return core.ID(id), nil
	}
	// Exported integer columns holding NaN come out as floats, e.g. "12.0".
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= 1<<63 {
		return 0, fmt.Errorf("invalid %s %q", ColumnID, raw)
	}
	return core.ID(f), nil
}

// ParseStars reads a stars column. Numeric tiers ("2", "2.0") are the
// cleaned form, Michelin labels ("Two Stars: Excellent cooking") the raw
// form. Empty and unrecognized labels mean the distinction is unknown.
func ParseStars(raw string) (core.Stars, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.StarsNone, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f != math.Trunc(f) || !core.Stars(int(f)).Known() {
			return core.StarsNone, fmt.Errorf("%w: %q", core.ErrInvalidStars, raw)
		}
		return core.Stars(int(f)), nil
	}
	return core.ParseStarsLabel(raw), nil
}

// ParsePrice reads a price column. Symbol strings ("€€€", "$$") count the
// currency symbols; a plain integer is taken as the count itself.
func ParsePrice(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, core.ErrNegativePrice
		}
		return n, nil
	}
	count := 0
	for _, r := range raw {
		if unicode.Is(unicode.Sc, r) {
			count++
		}
	}
	return count, nil
}

// ParseLocation reads the geocoder's literal, e.g.
// {'lat': 48.8566, 'lng': 2.3522}. Single quotes are accepted.
func ParseLocation(raw string) (*core.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var v struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &v); err != nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidLocation, raw)
	}
	if v.Lat == nil || v.Lng == nil {
		return nil, nil
	}
	loc := core.Location{Lat: *v.Lat, Lng: *v.Lng}
	if err := core.ValidateLocation(loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// WriteCSV writes records in the canonical column layout, embeddings
// included, so the output can be read back with NewReader.
func WriteCSV(w io.Writer, records []*core.RestaurantRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		ColumnID, ColumnName, ColumnAddress, ColumnCountry, ColumnISOCode, ColumnCuisine,
		ColumnStars, ColumnPrice, ColumnDescription, ColumnLocation, ColumnEmbedding,
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		if r == nil {
			continue
		}
		stars := ""
		if r.Stars.Known() {
			stars = strconv.Itoa(int(r.Stars))
		}
		location := ""
		if r.Location != nil {
			location = fmt.Sprintf("{'lat': %s, 'lng': %s}",
				strconv.FormatFloat(r.Location.Lat, 'f', -1, 64),
				strconv.FormatFloat(r.Location.Lng, 'f', -1, 64))
		}
		embedding := ""
		if r.HasEmbedding() {
			embedding = core.FormatVector(r.Vector)
		}
		row := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.Name, r.Address, r.Country, r.ISOCode, r.Cuisine,
			stars,
			strconv.Itoa(r.PriceSymbolCount),
			r.Description,
			location,
			embedding,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
