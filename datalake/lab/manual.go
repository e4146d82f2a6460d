package lab

import (
	"github.com/rudderlabs/rudder-datalake-lab/datalake/dataset"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
)

// ManualSchema is the hand written schema of the sample dataset. It declares
// the integer columns as int, which is what the sample holds, regardless of
// absent values.
func ManualSchema(n dataset.Naming) []schema.Column {
	leaves := func() []schema.Field {
		return []schema.Field{
			{Name: n.Name("a_int"), Type: schema.Integer{}},
			{Name: n.Name("a_str"), Type: schema.String{}},
			{Name: n.Name("a_int_list"), Type: schema.List{Elem: schema.Integer{}}},
			{Name: n.Name("a_str_list"), Type: schema.List{Elem: schema.String{}}},
		}
	}

	return []schema.Column{
		{Name: n.Name("id"), Type: schema.Integer{}},
		{Name: n.Name(dataset.PartitionKey), Type: schema.String{}},
		{Name: n.Name("a_int"), Type: schema.Integer{}},
		{Name: n.Name("a_str"), Type: schema.String{}},
		{Name: n.Name("a_int_list"), Type: schema.List{Elem: schema.Integer{}}},
		{Name: n.Name("a_str_list"), Type: schema.List{Elem: schema.String{}}},
		{Name: n.Name("a_list_of_int_list"), Type: schema.List{Elem: schema.List{Elem: schema.Integer{}}}},
		{Name: n.Name("a_list_of_str_list"), Type: schema.List{Elem: schema.List{Elem: schema.String{}}}},
		{Name: n.Name("a_list_of_struct"), Type: schema.List{Elem: schema.NewStruct(leaves()...)}},
		{Name: n.Name("a_struct"), Type: schema.NewStruct(append(leaves(),
			schema.Field{Name: n.Name("a_struct"), Type: schema.NewStruct(leaves()...)},
		)...)},
	}
}
