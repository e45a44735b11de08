package main

import (
	"strings"
	"testing"
)

func fkSchema() *Schema {
	// logs -> users, orders -> users, order_items -> orders + products
	return &Schema{Tables: []Table{
		{Name: "order_items", ForeignKeys: []ForeignKey{
			{Column: "order_id", RefTable: "orders", RefColumn: "id"},
			{Column: "product_id", RefTable: "products", RefColumn: "id"},
		}},
		{Name: "logs", ForeignKeys: []ForeignKey{
			{Column: "user_id", RefTable: "users", RefColumn: "id"},
		}},
		{Name: "orders", ForeignKeys: []ForeignKey{
			{Column: "user_id", RefTable: "users", RefColumn: "id"},
		}},
		{Name: "users"},
		{Name: "products"},
	}}
}

func indexIn(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestImportOrderTopological(t *testing.T) {
	schema := fkSchema()
	order, warnings := importOrder(schema, nil)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(order) != len(schema.Tables) {
		t.Fatalf("order has %d tables, want %d", len(order), len(schema.Tables))
	}

	// Every referenced table must come before its referrer.
	for _, tbl := range schema.Tables {
		for _, fk := range tbl.ForeignKeys {
			if indexIn(order, fk.RefTable) > indexIn(order, tbl.Name) {
				t.Errorf("%s ordered before its dependency %s: %v", tbl.Name, fk.RefTable, order)
			}
		}
	}
}

func TestImportOrderExplicit(t *testing.T) {
	schema := fkSchema()
	explicit := []string{"logs", "users", "users", "phantom"}
	order, _ := importOrder(schema, explicit)

	// The explicit ranking is authoritative even against foreign keys;
	// duplicates and unknown names are dropped, the rest follows in schema
	// order.
	want := []string{"logs", "users", "order_items", "orders", "products"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestImportOrderCycle(t *testing.T) {
	schema := &Schema{Tables: []Table{
		{Name: "a", ForeignKeys: []ForeignKey{{Column: "b_id", RefTable: "b"}}},
		{Name: "b", ForeignKeys: []ForeignKey{{Column: "a_id", RefTable: "a"}}},
		{Name: "c"},
	}}
	order, warnings := importOrder(schema, nil)
	if len(order) != 3 {
		t.Fatalf("cycle lost tables: %v", order)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a cycle warning")
	}
	if !strings.Contains(warnings[0], "cycle") {
		t.Errorf("warning %q does not mention the cycle", warnings[0])
	}
}

func TestImportOrderSelfReference(t *testing.T) {
	schema := &Schema{Tables: []Table{
		{Name: "categories", ForeignKeys: []ForeignKey{
			{Column: "parent_id", RefTable: "categories", RefColumn: "id"},
		}},
	}}
	order, warnings := importOrder(schema, nil)
	if len(order) != 1 || order[0] != "categories" {
		t.Fatalf("order = %v", order)
	}
	if len(warnings) != 0 {
		t.Errorf("self-reference should not warn: %v", warnings)
	}
}

func TestImportOrderMissingReference(t *testing.T) {
	// An excluded referenced table must not block ordering.
	schema := &Schema{Tables: []Table{
		{Name: "logs", ForeignKeys: []ForeignKey{{Column: "user_id", RefTable: "users"}}},
	}}
	order, warnings := importOrder(schema, nil)
	if len(order) != 1 || order[0] != "logs" {
		t.Fatalf("order = %v", order)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestImportLevels(t *testing.T) {
	schema := fkSchema()
	order, _ := importOrder(schema, nil)
	levels := importLevels(schema, order)

	levelOf := map[string]int{}
	for i, level := range levels {
		for _, name := range level {
			levelOf[name] = i
		}
	}
	if len(levelOf) != len(schema.Tables) {
		t.Fatalf("levels lost tables: %v", levels)
	}
	// No table may share a level with a table it references.
	for _, tbl := range schema.Tables {
		for _, fk := range tbl.ForeignKeys {
			if levelOf[tbl.Name] <= levelOf[fk.RefTable] {
				t.Errorf("%s (level %d) not after %s (level %d)",
					tbl.Name, levelOf[tbl.Name], fk.RefTable, levelOf[fk.RefTable])
			}
		}
	}
	if levelOf["users"] != 0 || levelOf["products"] != 0 {
		t.Errorf("roots should be level 0: %v", levels)
	}
	if levelOf["order_items"] != 2 {
		t.Errorf("order_items should be level 2: %v", levels)
	}
}

func TestReversed(t *testing.T) {
	in := []string{"users", "orders", "logs"}
	got := reversed(in)
	want := []string{"logs", "orders", "users"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("reversed = %v, want %v", got, want)
	}
	if in[0] != "users" {
		t.Error("reversed must not mutate its input")
	}
}
