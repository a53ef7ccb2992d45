package postgres

import (
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/storage"
)

const restaurantColumns = "id, name, address, country, iso_code, cuisine, description, stars, " +
	"price_symbol_count, latitude, longitude, description_hash, embedding"

// queryBuilder accumulates positional arguments for a statement.
type queryBuilder struct {
	args []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// filterClauses translates a relational filter into WHERE conditions.
func (b *queryBuilder) filterClauses(f core.Filter) []string {
	var clauses []string
	if f.Country != "" {
		clauses = append(clauses, "lower(country) = lower("+b.arg(f.Country)+")")
	}
	if f.ISOCode != "" {
		clauses = append(clauses, "lower(iso_code) = lower("+b.arg(f.ISOCode)+")")
	}
	if f.Cuisine != "" {
		clauses = append(clauses, "lower(cuisine) = lower("+b.arg(f.Cuisine)+")")
	}
	if len(f.Stars) > 0 {
		known := make([]int16, 0, len(f.Stars))
		wantNone := false
		for _, s := range f.Stars {
			if s.Known() {
				known = append(known, int16(s))
			} else {
				wantNone = true
			}
		}
		switch {
		case len(known) > 0 && wantNone:
			clauses = append(clauses, "(stars = ANY("+b.arg(known)+") OR stars IS NULL)")
		case len(known) > 0:
			clauses = append(clauses, "stars = ANY("+b.arg(known)+")")
		default:
			clauses = append(clauses, "stars IS NULL")
		}
	}
	if f.MinPrice > 0 {
		clauses = append(clauses, "price_symbol_count >= "+b.arg(f.MinPrice))
	}
	if f.MaxPrice > 0 {
		clauses = append(clauses, "price_symbol_count <= "+b.arg(f.MaxPrice))
	}
	return clauses
}

// buildListQuery selects the records matching f in ascending ID order.
func buildListQuery(f core.Filter) (string, []any) {
	var b queryBuilder
	var sb strings.Builder
	sb.WriteString("SELECT " + restaurantColumns + " FROM restaurants")
	if clauses := b.filterClauses(f); len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	sb.WriteString(" ORDER BY id ASC")
	return sb.String(), b.args
}

// buildSearchQuery scores embedded records by cosine similarity and returns
// the capped candidate window: similarity strictly above the threshold,
// descending with ascending ID on ties. Rows with a different dimension or a
// zero vector are excluded since <=> is undefined for them.
func buildSearchQuery(q storage.SimilarityQuery) (string, []any) {
	var b queryBuilder
	vec := b.arg(pgvector.NewVector(q.Vector))
	dims := b.arg(len(q.Vector))

	where := []string{
		"embedding IS NOT NULL",
		"vector_dims(embedding) = " + dims,
		"vector_norm(embedding) > 0",
	}
	where = append(where, b.filterClauses(q.Params.Filter)...)

	threshold := b.arg(float64(q.Params.Threshold))
	limit := b.arg(q.Params.CandidateCap)

	var sb strings.Builder
	sb.WriteString("WITH scored AS (SELECT " + restaurantColumns + ", ")
	sb.WriteString("1 - (embedding <=> " + vec + "::vector) AS similarity FROM restaurants WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	sb.WriteString(") SELECT " + restaurantColumns + ", similarity FROM scored")
	sb.WriteString(" WHERE similarity > " + threshold)
	sb.WriteString(" ORDER BY similarity DESC, id ASC LIMIT " + limit)
	return sb.String(), b.args
}
