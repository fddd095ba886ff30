// Package postgres provides PostgreSQL implementations of repository interfaces.
package postgres

import (
	"fmt"
	"strings"

	"regwatch/internal/domain/entity"
	"regwatch/internal/repository"
)

// ChangeQueryBuilder builds the WHERE clause for change record searches with
// numbered placeholders. Column names are qualified with tableAlias when set.
type ChangeQueryBuilder struct{}

func NewChangeQueryBuilder() *ChangeQueryBuilder {
	return &ChangeQueryBuilder{}
}

// BuildWhereClause returns "" when no filter is set.
func (qb *ChangeQueryBuilder) BuildWhereClause(f repository.ChangeFilters, tableAlias string) (clause string, args []any) {
	col := func(name string) string {
		if tableAlias == "" {
			return name
		}
		return tableAlias + "." + name
	}
	var conditions []string
	next := func() int { return len(args) + 1 }

	if f.SourceID != nil {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", col("source_id"), next()))
		args = append(args, *f.SourceID)
	}
	if f.Category != nil {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", col("category"), next()))
		args = append(args, string(*f.Category))
	}
	if f.MinImpact != nil {
		impacts := entity.ImpactsAtLeast(*f.MinImpact)
		placeholders := make([]string, len(impacts))
		for i, im := range impacts {
			placeholders[i] = fmt.Sprintf("$%d", next())
			args = append(args, string(im))
		}
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", col("impact"), strings.Join(placeholders, ", ")))
	}
	if f.From != nil {
		conditions = append(conditions, fmt.Sprintf("%s >= $%d", col("detected_at"), next()))
		args = append(args, *f.From)
	}
	if f.To != nil {
		conditions = append(conditions, fmt.Sprintf("%s <= $%d", col("detected_at"), next()))
		args = append(args, *f.To)
	}
	if f.Unclassified {
		conditions = append(conditions, col("classified_at")+" IS NULL")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
