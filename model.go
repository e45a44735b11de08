package main

// Column describes a single column in dialect-neutral form. NativeType keeps
// the source dialect's declared type (lowercased, with parameters), e.g.
// "varchar(200)", "tinyint(1)", "timestamp".
type Column struct {
	Name          string
	NativeType    string
	Nullable      bool
	Default       *string
	AutoIncrement bool
	MaxLength     int64 // declared character length, 0 if none
	OrdinalPos    int
}

// ForeignKey is one column-level reference. It is used only to build the
// dependency graph; the constraint is not re-created on the target.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table holds the introspected or parsed definition of one table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema holds all tables from one source, in discovery order.
type Schema struct {
	Tables []Table
}

// Table returns the named table, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// TableNames returns table names in schema order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}
