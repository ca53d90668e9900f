package delta

import (
	"context"
	"errors"
	"fmt"

	"deltaframe/internal/dataframe"
	"deltaframe/internal/parquetio"
	"deltaframe/internal/predicate"
	"deltaframe/internal/storage"
)

// columnSource says where an output column comes from
type columnSource struct {
	name      string
	// dataIndex indexes the decoded row, -1 for partition columns
	dataIndex int
	partition bool
}

// filePartition reads one data file of a resolved table
type filePartition struct {
	store  storage.ObjectStore
	reader *parquetio.Reader
	file   DataFile
	decode []parquetio.Column
	// typed partition values
	values map[string]interface{}
	output []columnSource
	// columns the row filter needs
	needed []columnSource
	filter predicate.Predicate
}

var _ dataframe.Partition = (*filePartition)(nil)

func (p *filePartition) Key() string {
	return p.file.Path
}

// Read decodes the file, adds partition columns, filters and projects
func (p *filePartition) Read(ctx context.Context) ([][]interface{}, error) {
	data, err := p.store.Read(ctx, p.file.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, &NotFoundError{Path: p.file.Key}
		}
		return nil, fmt.Errorf("failed to read data file %s: %w", p.file.Key, err)
	}

	decoded, err := p.reader.Decode(ctx, data, p.decode)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data file %s: %w", p.file.Key, err)
	}

	rows := make([][]interface{}, 0, len(decoded))
	for _, raw := range decoded {
		if p.filter != nil && !predicate.Matches(p.filter, p.rowMap(raw)) {
			continue
		}
		row := make([]interface{}, len(p.output))
		for i, src := range p.output {
			row[i] = p.value(src, raw)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *filePartition) value(src columnSource, raw []interface{}) interface{} {
	if src.partition {
		return p.values[src.name]
	}
	if src.dataIndex < 0 || src.dataIndex >= len(raw) {
		return nil
	}
	return raw[src.dataIndex]
}

func (p *filePartition) rowMap(raw []interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(p.needed))
	for _, src := range p.needed {
		row[src.name] = p.value(src, raw)
	}
	return row
}

// typedPartitionValues parses the raw partition values of a file. Partition
// columns the file does not mention are null.
func typedPartitionValues(file DataFile, schema Schema, partitionColumns []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(partitionColumns))
	for _, name := range partitionColumns {
		field, ok := schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: partition column %s is not in the schema", ErrCorruptLog, name)
		}
		v, err := parquetio.ParsePartitionValue(file.PartitionValues[name], field.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrCorruptLog, file.Path, err)
		}
		values[name] = v
	}
	return values, nil
}

// partitionPlan is shared by every partition of one frame
type partitionPlan struct {
	decode []parquetio.Column
	output []columnSource
	needed []columnSource
}

// planColumns works out which columns to decode from each data file and
// where every output and filter column is taken from.
func planColumns(schema Schema, partitionColumns []string, output []string, filter predicate.Predicate) partitionPlan {
	isPartition := make(map[string]bool, len(partitionColumns))
	for _, name := range partitionColumns {
		isPartition[name] = true
	}

	var plan partitionPlan
	index := make(map[string]int)
	source := func(name string) columnSource {
		if isPartition[name] {
			return columnSource{name: name, dataIndex: -1, partition: true}
		}
		idx, ok := index[name]
		if !ok {
			field, _ := schema.Field(name)
			idx = len(plan.decode)
			index[name] = idx
			plan.decode = append(plan.decode, parquetio.Column{Name: name, Type: field.Type})
		}
		return columnSource{name: name, dataIndex: idx}
	}

	for _, name := range output {
		plan.output = append(plan.output, source(name))
	}
	if filter != nil {
		for _, name := range predicate.Columns(filter) {
			plan.needed = append(plan.needed, source(name))
		}
	}
	return plan
}
