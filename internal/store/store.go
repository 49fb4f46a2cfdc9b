package store

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/logging"
)

// Item is one record of the partitioned store in its native attribute form
type Item = map[string]*dynamodb.AttributeValue

// Table and index status values as reported by DescribeTable
const (
	StatusActive   = "ACTIVE"
	StatusCreating = "CREATING"
	StatusUpdating = "UPDATING"
	StatusDeleting = "DELETING"
)

// KeyDefinition names one key attribute and its scalar type ("S", "N" or "B")
type KeyDefinition struct {
	Name string
	Type string
}

// IndexSchema describes one secondary index profile
type IndexSchema struct {
	Name     string
	HashKey  KeyDefinition
	RangeKey *KeyDefinition
}

// TableSchema describes a table to be created
type TableSchema struct {
	Name     string
	HashKey  KeyDefinition
	RangeKey *KeyDefinition
	Indexes  []IndexSchema
}

// IndexDescription reports the state of one secondary index
type IndexDescription struct {
	Name   string
	Status string
}

// TableDescription reports the state of a table
type TableDescription struct {
	Name          string
	Status        string
	ItemCount     int64
	SizeBytes     int64
	KeyAttributes []string
	Indexes       []IndexDescription
}

// ScanFilter keeps only items whose attribute compares >= MinValue.
// Used for incremental backups over a last-modified attribute.
type ScanFilter struct {
	Attribute string
	MinValue  *dynamodb.AttributeValue
}

// Client is the narrow surface of the partitioned key-value store that the
// lifecycle subsystem depends on
type Client interface {
	PutItem(ctx context.Context, table string, item Item) error
	// PutItemIfAbsent writes item only when no item with the same primary key
	// exists. keyAttr is the hash key attribute name the condition guards.
	// Returns false without error when the item already existed.
	PutItemIfAbsent(ctx context.Context, table string, item Item, keyAttr string) (bool, error)
	GetItem(ctx context.Context, table string, key Item) (Item, error)
	DeleteItem(ctx context.Context, table string, key Item) error
	Query(ctx context.Context, table, index, keyAttr string, keyValue *dynamodb.AttributeValue, limit int64) ([]Item, error)
	// ScanSegment reads segment (0-based) of totalSegments, following
	// pagination until the segment is exhausted.
	ScanSegment(ctx context.Context, table string, segment, totalSegments int, filter *ScanFilter) ([]Item, error)
	// BatchWriteItems writes items in store-native batches, retrying
	// unprocessed leftovers.
	BatchWriteItems(ctx context.Context, table string, items []Item) error
	BatchDeleteItems(ctx context.Context, table string, keys []Item) error

	CreateTable(ctx context.Context, schema TableSchema) error
	DeleteTable(ctx context.Context, table string) error
	CreateIndex(ctx context.Context, table string, index IndexSchema) error
	DeleteIndex(ctx context.Context, table, indexName string) error
	DescribeTable(ctx context.Context, table string) (*TableDescription, error)
	TableExists(ctx context.Context, table string) (bool, error)
	WaitForTableActive(ctx context.Context, table string) error
	WaitForIndexActive(ctx context.Context, table, indexName string) error
}

// NewClient selects the store implementation for the configured endpoint.
// The "memory" endpoint yields the in-process store used for development
// and tests; anything else goes through the DynamoDB adapter.
func NewClient(cfg *config.Config, logger *logging.Logger) (Client, error) {
	if cfg.Store.Endpoint == "memory" {
		return NewMemoryStore(), nil
	}
	return NewDynamoDBStore(cfg, logger)
}

// Attribute value constructors, shorthand for the verbose SDK literals

// StringAttr builds a string attribute value
func StringAttr(s string) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{S: aws.String(s)}
}

// NumberAttr builds a number attribute value from its decimal string form
func NumberAttr(n string) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{N: aws.String(n)}
}

// BoolAttr builds a boolean attribute value
func BoolAttr(b bool) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{BOOL: aws.Bool(b)}
}

// NullAttr builds a null attribute value
func NullAttr() *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{NULL: aws.Bool(true)}
}

// ListAttr builds a list attribute value
func ListAttr(values ...*dynamodb.AttributeValue) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{L: values}
}

// MapAttr builds a map attribute value
func MapAttr(m map[string]*dynamodb.AttributeValue) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{M: m}
}

// KeyOf extracts the primary key attributes from an item
func KeyOf(item Item, keyAttributes []string) Item {
	key := make(Item, len(keyAttributes))
	for _, attr := range keyAttributes {
		if v, ok := item[attr]; ok {
			key[attr] = v
		}
	}
	return key
}
