package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go/service/dynamodb"

	appErrors "dynamo-lifecycle/internal/errors"
)

// MemoryStore is an in-process Client used for development ("memory"
// endpoint) and tests. Tables and indexes become active immediately.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	schema TableSchema
	items  map[string]Item
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]*memoryTable),
	}
}

func (m *MemoryStore) table(name string) (*memoryTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, appErrors.NewNotFoundError(fmt.Sprintf("table %s does not exist", name), nil)
	}
	return t, nil
}

func (t *memoryTable) keyAttributes() []string {
	attrs := []string{t.schema.HashKey.Name}
	if t.schema.RangeKey != nil {
		attrs = append(attrs, t.schema.RangeKey.Name)
	}
	return attrs
}

func (t *memoryTable) keyString(item Item) (string, error) {
	hashVal := attrKeyString(item[t.schema.HashKey.Name])
	if hashVal == "" {
		return "", appErrors.NewValidationError(
			fmt.Sprintf("item is missing hash key %s", t.schema.HashKey.Name), nil)
	}
	if t.schema.RangeKey == nil {
		return hashVal, nil
	}
	rangeVal := attrKeyString(item[t.schema.RangeKey.Name])
	if rangeVal == "" {
		return "", appErrors.NewValidationError(
			fmt.Sprintf("item is missing range key %s", t.schema.RangeKey.Name), nil)
	}
	return hashVal + "\x1f" + rangeVal, nil
}

func attrKeyString(av *dynamodb.AttributeValue) string {
	switch {
	case av == nil:
		return ""
	case av.S != nil:
		return *av.S
	case av.N != nil:
		return *av.N
	case av.B != nil:
		return base64.StdEncoding.EncodeToString(av.B)
	default:
		return ""
	}
}

// attrEqual compares two scalar key attribute values
func attrEqual(a, b *dynamodb.AttributeValue) bool {
	return a != nil && b != nil && attrKeyString(a) == attrKeyString(b) && attrKeyString(a) != ""
}

// attrCompare orders two scalar values, numerically when both parse as numbers
func attrCompare(a, b *dynamodb.AttributeValue) int {
	if a != nil && b != nil && a.N != nil && b.N != nil {
		af, errA := strconv.ParseFloat(*a.N, 64)
		bf, errB := strconv.ParseFloat(*b.N, 64)
		if errA == nil && errB == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := attrKeyString(a), attrKeyString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// PutItem stores a deep copy of item, replacing any existing item with the
// same primary key
func (m *MemoryStore) PutItem(ctx context.Context, table string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	key, err := t.keyString(item)
	if err != nil {
		return err
	}
	t.items[key] = CopyItem(item)
	return nil
}

// PutItemIfAbsent stores item unless its primary key already exists
func (m *MemoryStore) PutItemIfAbsent(ctx context.Context, table string, item Item, keyAttr string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return false, err
	}
	key, err := t.keyString(item)
	if err != nil {
		return false, err
	}
	if _, exists := t.items[key]; exists {
		return false, nil
	}
	t.items[key] = CopyItem(item)
	return true, nil
}

// GetItem returns a copy of the item with the given key, or nil when absent
func (m *MemoryStore) GetItem(ctx context.Context, table string, key Item) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	ks, err := t.keyString(key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[ks]
	if !ok {
		return nil, nil
	}
	return CopyItem(item), nil
}

// DeleteItem removes the item with the given key; absent keys are a no-op
func (m *MemoryStore) DeleteItem(ctx context.Context, table string, key Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	ks, err := t.keyString(key)
	if err != nil {
		return err
	}
	delete(t.items, ks)
	return nil
}

// Query returns items whose keyAttr equals keyValue. A non-empty index name
// must match a configured secondary index.
func (m *MemoryStore) Query(ctx context.Context, table, index, keyAttr string, keyValue *dynamodb.AttributeValue, limit int64) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}

	if index != "" {
		found := false
		for _, idx := range t.schema.Indexes {
			if idx.Name == index {
				found = true
				break
			}
		}
		if !found {
			return nil, appErrors.NewNotFoundError(
				fmt.Sprintf("index %s does not exist on table %s", index, table), nil)
		}
	}

	var results []Item
	for _, item := range t.items {
		if attrEqual(item[keyAttr], keyValue) {
			results = append(results, CopyItem(item))
			if limit > 0 && int64(len(results)) >= limit {
				break
			}
		}
	}
	return results, nil
}

// ScanSegment returns the items assigned to segment of totalSegments.
// Assignment hashes the primary key, so segments are disjoint and cover
// the whole table.
func (m *MemoryStore) ScanSegment(ctx context.Context, table string, segment, totalSegments int, filter *ScanFilter) ([]Item, error) {
	if totalSegments <= 0 || segment < 0 || segment >= totalSegments {
		return nil, appErrors.NewValidationError(
			fmt.Sprintf("segment %d of %d is out of range", segment, totalSegments), nil)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}

	var results []Item
	for key, item := range t.items {
		if segmentOf(key, totalSegments) != segment {
			continue
		}
		if filter != nil {
			attr, ok := item[filter.Attribute]
			if !ok || attrCompare(attr, filter.MinValue) < 0 {
				continue
			}
		}
		results = append(results, CopyItem(item))
	}
	return results, nil
}

func segmentOf(key string, totalSegments int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(totalSegments))
}

// BatchWriteItems stores every item, replacing existing primary keys
func (m *MemoryStore) BatchWriteItems(ctx context.Context, table string, items []Item) error {
	for _, item := range items {
		if err := m.PutItem(ctx, table, item); err != nil {
			return err
		}
	}
	return nil
}

// BatchDeleteItems removes every given key
func (m *MemoryStore) BatchDeleteItems(ctx context.Context, table string, keys []Item) error {
	for _, key := range keys {
		if err := m.DeleteItem(ctx, table, key); err != nil {
			return err
		}
	}
	return nil
}

// CreateTable creates a new table; creating an existing table is a conflict
func (m *MemoryStore) CreateTable(ctx context.Context, schema TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tables[schema.Name]; exists {
		return appErrors.NewConflictError(fmt.Sprintf("table %s already exists", schema.Name), nil)
	}
	m.tables[schema.Name] = &memoryTable{
		schema: schema,
		items:  make(map[string]Item),
	}
	return nil
}

// DeleteTable removes a table and all of its items
func (m *MemoryStore) DeleteTable(ctx context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tables[table]; !exists {
		return appErrors.NewNotFoundError(fmt.Sprintf("table %s does not exist", table), nil)
	}
	delete(m.tables, table)
	return nil
}

// CreateIndex adds a secondary index profile to an existing table
func (m *MemoryStore) CreateIndex(ctx context.Context, table string, index IndexSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	for _, idx := range t.schema.Indexes {
		if idx.Name == index.Name {
			return appErrors.NewConflictError(
				fmt.Sprintf("index %s already exists on table %s", index.Name, table), nil)
		}
	}
	t.schema.Indexes = append(t.schema.Indexes, index)
	return nil
}

// DeleteIndex removes a secondary index profile
func (m *MemoryStore) DeleteIndex(ctx context.Context, table, indexName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.table(table)
	if err != nil {
		return err
	}
	for i, idx := range t.schema.Indexes {
		if idx.Name == indexName {
			t.schema.Indexes = append(t.schema.Indexes[:i], t.schema.Indexes[i+1:]...)
			return nil
		}
	}
	return appErrors.NewNotFoundError(
		fmt.Sprintf("index %s does not exist on table %s", indexName, table), nil)
}

// DescribeTable reports the table state; in-memory tables are always active
func (m *MemoryStore) DescribeTable(ctx context.Context, table string) (*TableDescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}

	desc := &TableDescription{
		Name:          table,
		Status:        StatusActive,
		ItemCount:     int64(len(t.items)),
		KeyAttributes: t.keyAttributes(),
	}
	for _, idx := range t.schema.Indexes {
		desc.Indexes = append(desc.Indexes, IndexDescription{Name: idx.Name, Status: StatusActive})
	}
	return desc, nil
}

// TableExists reports whether the table is present
func (m *MemoryStore) TableExists(ctx context.Context, table string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.tables[table]
	return exists, nil
}

// WaitForTableActive returns once the table exists; in-memory tables are
// active from creation
func (m *MemoryStore) WaitForTableActive(ctx context.Context, table string) error {
	_, err := m.DescribeTable(ctx, table)
	return err
}

// WaitForIndexActive returns once the index exists
func (m *MemoryStore) WaitForIndexActive(ctx context.Context, table, indexName string) error {
	desc, err := m.DescribeTable(ctx, table)
	if err != nil {
		return err
	}
	for _, idx := range desc.Indexes {
		if idx.Name == indexName {
			return nil
		}
	}
	return appErrors.NewNotFoundError(
		fmt.Sprintf("index %s does not exist on table %s", indexName, table), nil)
}
