package dataframe

// Table is a materialized frame
type Table struct {
	Fields []Field
	Rows   [][]interface{}
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// NumCols returns the number of columns
func (t *Table) NumCols() int {
	return len(t.Fields)
}

// Shape returns (rows, columns)
func (t *Table) Shape() (int, int) {
	return t.NumRows(), t.NumCols()
}

// ColumnNames returns the column names in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Column returns the values of one column
func (t *Table) Column(name string) ([]interface{}, bool) {
	pos := -1
	for i, f := range t.Fields {
		if f.Name == name {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, false
	}
	values := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[pos]
	}
	return values, true
}

// Records returns the rows as column-name keyed maps
func (t *Table) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		record := make(map[string]interface{}, len(t.Fields))
		for j, f := range t.Fields {
			record[f.Name] = row[j]
		}
		records[i] = record
	}
	return records
}
