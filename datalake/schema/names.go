package schema

import (
	"regexp"

	"github.com/iancoleman/strcase"
)

var catalogNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NameIssue is a column or struct field whose name does not follow the catalog
// naming convention (lower snake case).
type NameIssue struct {
	// Path is the dotted path from the top level column, e.g. aStruct.aInt.
	Path       string
	Suggestion string
}

// CatalogNameIssues lists the names that Glue would lowercase or reject. Data
// with such names is only readable through case-insensitive matching.
func CatalogNameIssues(columns []Column) []NameIssue {
	var issues []NameIssue
	for _, c := range columns {
		issues = appendNameIssues(issues, c.Name, c.Name, c.Type)
	}
	return issues
}

func appendNameIssues(issues []NameIssue, path, name string, t Type) []NameIssue {
	if !catalogNameRegex.MatchString(name) {
		issues = append(issues, NameIssue{Path: path, Suggestion: strcase.ToSnake(name)})
	}

	switch v := t.(type) {
	case List:
		return appendNameIssues(issues, path, "element", v.Elem)
	case Struct:
		for _, f := range v.Fields {
			issues = appendNameIssues(issues, path+"."+f.Name, f.Name, f.Type)
		}
	}
	return issues
}
