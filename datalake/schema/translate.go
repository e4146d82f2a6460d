package schema

import (
	"fmt"

	"github.com/samber/lo"
)

// CatalogColumn is a column as the catalog sees it: a name and a type string.
type CatalogColumn struct {
	Name string
	Type string
}

// Translation is the catalog form of a schema. Columns and Partitions are
// disjoint and keep the source order; partitions follow the declared key order.
type Translation struct {
	Columns    []CatalogColumn
	Partitions []CatalogColumn
}

// ColumnTypes returns the regular columns as a name to type string map.
func (t *Translation) ColumnTypes() map[string]string {
	return toMap(t.Columns)
}

// PartitionTypes returns the partition columns as a name to type string map.
func (t *Translation) PartitionTypes() map[string]string {
	return toMap(t.Partitions)
}

// PartitionKeys returns the partition column names in declaration order.
func (t *Translation) PartitionKeys() []string {
	return lo.Map(t.Partitions, func(c CatalogColumn, _ int) string { return c.Name })
}

func toMap(columns []CatalogColumn) map[string]string {
	return lo.SliceToMap(columns, func(c CatalogColumn) (string, string) {
		return c.Name, c.Type
	})
}

// Translate renders columns into catalog type strings, moving the columns named
// in partitionKeys into the partition list.
func Translate(columns []Column, partitionKeys []string) (*Translation, error) {
	byName := make(map[string]string, len(columns))
	for _, c := range columns {
		if _, ok := byName[c.Name]; ok {
			return nil, fmt.Errorf("column %s: %w", c.Name, ErrDuplicateField)
		}
		if err := Validate(c.Type); err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		rendered, err := Render(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		byName[c.Name] = rendered
	}

	isPartition := make(map[string]struct{}, len(partitionKeys))
	translation := &Translation{}
	for _, key := range partitionKeys {
		rendered, ok := byName[key]
		if !ok {
			return nil, fmt.Errorf("partition key %s: %w", key, ErrMissingPartitionColumn)
		}
		if _, dup := isPartition[key]; dup {
			return nil, fmt.Errorf("partition key %s: %w", key, ErrDuplicateField)
		}
		isPartition[key] = struct{}{}
		translation.Partitions = append(translation.Partitions, CatalogColumn{Name: key, Type: rendered})
	}

	for _, c := range columns {
		if _, ok := isPartition[c.Name]; ok {
			continue
		}
		translation.Columns = append(translation.Columns, CatalogColumn{Name: c.Name, Type: byName[c.Name]})
	}
	return translation, nil
}
