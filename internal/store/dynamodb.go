package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

const (
	// DynamoDB accepts at most 25 write requests per batch call
	maxBatchSize = 25

	maxBatchAttempts    = 5
	batchRetryBaseDelay = 100 * time.Millisecond
)

// DynamoDBStore implements Client over the AWS DynamoDB API
type DynamoDBStore struct {
	client            *dynamodb.DynamoDB
	logger            *logging.Logger
	classifier        *appErrors.ErrorClassifier
	readinessInterval time.Duration
	readinessTimeout  time.Duration
}

// NewDynamoDBStore creates a DynamoDBStore from the store configuration.
// An empty endpoint targets the AWS regional endpoint; anything else is
// used verbatim, which is how local emulators are reached.
func NewDynamoDBStore(cfg *config.Config, logger *logging.Logger) (*DynamoDBStore, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Store.Region),
	}
	if cfg.Store.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Store.Endpoint)
	}
	if cfg.Store.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.Store.AccessKey,
			cfg.Store.SecretKey,
			"", // token
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to create AWS session", err)
	}

	return &DynamoDBStore{
		client:            dynamodb.New(sess),
		logger:            logger,
		classifier:        appErrors.NewErrorClassifier(),
		readinessInterval: cfg.Store.ReadinessIntervalDuration(),
		readinessTimeout:  cfg.Store.ReadinessTimeoutDuration(),
	}, nil
}

// PutItem writes item, replacing any existing item with the same primary key
func (d *DynamoDBStore) PutItem(ctx context.Context, table string, item Item) error {
	start := time.Now()
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	d.logger.LogStoreCall("PutItem", table, time.Since(start), err)
	if err != nil {
		return d.classifier.ClassifyError(err)
	}
	return nil
}

// PutItemIfAbsent writes item guarded by an attribute_not_exists condition
// on the hash key. A failed condition means the item already existed and is
// reported as (false, nil), not as an error.
func (d *DynamoDBStore) PutItemIfAbsent(ctx context.Context, table string, item Item, keyAttr string) (bool, error) {
	start := time.Now()
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]*string{"#k": aws.String(keyAttr)},
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			d.logger.LogStoreCall("PutItemIfAbsent", table, time.Since(start), nil)
			return false, nil
		}
		d.logger.LogStoreCall("PutItemIfAbsent", table, time.Since(start), err)
		return false, d.classifier.ClassifyError(err)
	}
	d.logger.LogStoreCall("PutItemIfAbsent", table, time.Since(start), nil)
	return true, nil
}

// GetItem reads the item with the given key using a consistent read.
// A missing item is (nil, nil).
func (d *DynamoDBStore) GetItem(ctx context.Context, table string, key Item) (Item, error) {
	start := time.Now()
	resp, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	d.logger.LogStoreCall("GetItem", table, time.Since(start), err)
	if err != nil {
		return nil, d.classifier.ClassifyError(err)
	}
	if len(resp.Item) == 0 {
		return nil, nil
	}
	return resp.Item, nil
}

// DeleteItem removes the item with the given key; absent keys are a no-op
func (d *DynamoDBStore) DeleteItem(ctx context.Context, table string, key Item) error {
	start := time.Now()
	_, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	d.logger.LogStoreCall("DeleteItem", table, time.Since(start), err)
	if err != nil {
		return d.classifier.ClassifyError(err)
	}
	return nil
}

// Query returns items whose keyAttr equals keyValue, following pagination
// until limit items are collected or the result set is exhausted
func (d *DynamoDBStore) Query(ctx context.Context, table, index, keyAttr string, keyValue *dynamodb.AttributeValue, limit int64) ([]Item, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]*string{"#k": aws.String(keyAttr)},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":v": keyValue},
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}
	if limit > 0 {
		input.Limit = aws.Int64(limit)
	}

	start := time.Now()
	var results []Item
	for {
		resp, err := d.client.QueryWithContext(ctx, input)
		if err != nil {
			d.logger.LogStoreCall("Query", table, time.Since(start), err)
			return nil, d.classifier.ClassifyError(err)
		}
		results = append(results, resp.Items...)
		if limit > 0 && int64(len(results)) >= limit {
			results = results[:limit]
			break
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	d.logger.LogStoreCall("Query", table, time.Since(start), nil)
	return results, nil
}

// ScanSegment reads one parallel scan segment to exhaustion. The optional
// filter is pushed down as a FilterExpression so filtered-out items never
// leave the store.
func (d *DynamoDBStore) ScanSegment(ctx context.Context, table string, segment, totalSegments int, filter *ScanFilter) ([]Item, error) {
	if totalSegments <= 0 || segment < 0 || segment >= totalSegments {
		return nil, appErrors.NewValidationError(
			fmt.Sprintf("segment %d of %d is out of range", segment, totalSegments), nil)
	}

	input := &dynamodb.ScanInput{
		TableName:     aws.String(table),
		Segment:       aws.Int64(int64(segment)),
		TotalSegments: aws.Int64(int64(totalSegments)),
	}
	if filter != nil {
		input.FilterExpression = aws.String("#f >= :min")
		input.ExpressionAttributeNames = map[string]*string{"#f": aws.String(filter.Attribute)}
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{":min": filter.MinValue}
	}

	start := time.Now()
	var results []Item
	for {
		resp, err := d.client.ScanWithContext(ctx, input)
		if err != nil {
			d.logger.LogStoreCall("Scan", table, time.Since(start), err)
			return nil, d.classifier.ClassifyError(err)
		}
		results = append(results, resp.Items...)
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	d.logger.LogStoreCall("Scan", table, time.Since(start), nil)
	return results, nil
}

// BatchWriteItems writes items in batches of 25, retrying unprocessed
// leftovers with backoff
func (d *DynamoDBStore) BatchWriteItems(ctx context.Context, table string, items []Item) error {
	for batchStart := 0; batchStart < len(items); batchStart += maxBatchSize {
		batchEnd := batchStart + maxBatchSize
		if batchEnd > len(items) {
			batchEnd = len(items)
		}
		requests := make([]*dynamodb.WriteRequest, 0, batchEnd-batchStart)
		for _, item := range items[batchStart:batchEnd] {
			requests = append(requests, &dynamodb.WriteRequest{
				PutRequest: &dynamodb.PutRequest{Item: item},
			})
		}
		if err := d.writeBatch(ctx, table, requests); err != nil {
			return err
		}
	}
	return nil
}

// BatchDeleteItems removes keys in batches of 25, retrying unprocessed
// leftovers with backoff
func (d *DynamoDBStore) BatchDeleteItems(ctx context.Context, table string, keys []Item) error {
	for batchStart := 0; batchStart < len(keys); batchStart += maxBatchSize {
		batchEnd := batchStart + maxBatchSize
		if batchEnd > len(keys) {
			batchEnd = len(keys)
		}
		requests := make([]*dynamodb.WriteRequest, 0, batchEnd-batchStart)
		for _, key := range keys[batchStart:batchEnd] {
			requests = append(requests, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			})
		}
		if err := d.writeBatch(ctx, table, requests); err != nil {
			return err
		}
	}
	return nil
}

func (d *DynamoDBStore) writeBatch(ctx context.Context, table string, requests []*dynamodb.WriteRequest) error {
	pending := requests
	delay := batchRetryBaseDelay

	for attempt := 0; attempt < maxBatchAttempts; attempt++ {
		start := time.Now()
		resp, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]*dynamodb.WriteRequest{table: pending},
		})
		d.logger.LogStoreCall("BatchWriteItem", table, time.Since(start), err)
		if err != nil {
			return d.classifier.ClassifyError(err)
		}

		pending = resp.UnprocessedItems[table]
		if len(pending) == 0 {
			return nil
		}

		d.logger.WithFields(map[string]interface{}{
			"table":       table,
			"unprocessed": len(pending),
			"attempt":     attempt + 1,
		}).Debug("Retrying unprocessed batch items")

		select {
		case <-ctx.Done():
			return appErrors.NewTransientStoreError("batch write interrupted", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return appErrors.NewTransientStoreError(
		fmt.Sprintf("%d items in table %s still unprocessed after %d attempts", len(pending), table, maxBatchAttempts), nil)
}

// CreateTable creates an on-demand table with the given keys and any
// secondary index profiles
func (d *DynamoDBStore) CreateTable(ctx context.Context, schema TableSchema) error {
	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(schema.Name),
		BillingMode:          aws.String(dynamodb.BillingModePayPerRequest),
		AttributeDefinitions: attributeDefinitions(schema),
		KeySchema:            keySchemaElements(schema.HashKey, schema.RangeKey),
	}
	for _, idx := range schema.Indexes {
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, &dynamodb.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keySchemaElements(idx.HashKey, idx.RangeKey),
			Projection: &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
		})
	}

	start := time.Now()
	_, err := d.client.CreateTableWithContext(ctx, input)
	d.logger.LogStoreCall("CreateTable", schema.Name, time.Since(start), err)
	if err != nil {
		return d.classifier.ClassifyError(err)
	}
	return nil
}

// DeleteTable removes a table and all of its items
func (d *DynamoDBStore) DeleteTable(ctx context.Context, table string) error {
	start := time.Now()
	_, err := d.client.DeleteTableWithContext(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(table),
	})
	d.logger.LogStoreCall("DeleteTable", table, time.Since(start), err)
	if err != nil {
		return d.classifier.ClassifyError(err)
	}
	return nil
}

// CreateIndex adds a secondary index to an existing table. The index
// backfills in the background; callers that need it queryable follow up
// with WaitForIndexActive.
func (d *DynamoDBStore) CreateIndex(ctx context.Context, table string, index IndexSchema) error {
	defs := attributeDefinitions(TableSchema{HashKey: index.HashKey, RangeKey: index.RangeKey})
	input := &dynamodb.UpdateTableInput{
		TableName:            aws.String(table),
		AttributeDefinitions: defs,
		GlobalSecondaryIndexUpdates: []*dynamodb.GlobalSecondaryIndexUpdate{
			{
				Create: &dynamodb.CreateGlobalSecondaryIndexAction{
					IndexName:  aws.String(index.Name),
					KeySchema:  keySchemaElements(index.HashKey, index.RangeKey),
					Projection: &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
				},
			},
		},
	}

	start := time.Now()
	_, err := d.client.UpdateTableWithContext(ctx, input)
	d.logger.LogStoreCall("CreateIndex", table, time.Since(start), err)
	if err != nil {
		return d.classifier.ClassifyError(err)
	}
	return nil
}

// DeleteIndex removes a secondary index from a table
func (d *DynamoDBStore) DeleteIndex(ctx context.Context, table, indexName string) error {
	input := &dynamodb.UpdateTableInput{
		TableName: aws.String(table),
		GlobalSecondaryIndexUpdates: []*dynamodb.GlobalSecondaryIndexUpdate{
			{
				Delete: &dynamodb.DeleteGlobalSecondaryIndexAction{
					IndexName: aws.String(indexName),
				},
			},
		},
	}

	start := time.Now()
	_, err := d.client.UpdateTableWithContext(ctx, input)
	d.logger.LogStoreCall("DeleteIndex", table, time.Since(start), err)
	if err != nil {
		return d.classifier.ClassifyError(err)
	}
	return nil
}

// DescribeTable reports the current table state
func (d *DynamoDBStore) DescribeTable(ctx context.Context, table string) (*TableDescription, error) {
	start := time.Now()
	resp, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	d.logger.LogStoreCall("DescribeTable", table, time.Since(start), err)
	if err != nil {
		return nil, d.classifier.ClassifyError(err)
	}

	t := resp.Table
	desc := &TableDescription{
		Name:      aws.StringValue(t.TableName),
		Status:    aws.StringValue(t.TableStatus),
		ItemCount: aws.Int64Value(t.ItemCount),
		SizeBytes: aws.Int64Value(t.TableSizeBytes),
	}
	for _, k := range t.KeySchema {
		desc.KeyAttributes = append(desc.KeyAttributes, aws.StringValue(k.AttributeName))
	}
	for _, g := range t.GlobalSecondaryIndexes {
		desc.Indexes = append(desc.Indexes, IndexDescription{
			Name:   aws.StringValue(g.IndexName),
			Status: aws.StringValue(g.IndexStatus),
		})
	}
	return desc, nil
}

// TableExists reports whether the table is present
func (d *DynamoDBStore) TableExists(ctx context.Context, table string) (bool, error) {
	_, err := d.DescribeTable(ctx, table)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// WaitForTableActive polls DescribeTable until the table reports ACTIVE.
// A table that is briefly invisible right after creation is tolerated.
// Waiting past the configured ceiling fails with a transient store error.
func (d *DynamoDBStore) WaitForTableActive(ctx context.Context, table string) error {
	deadline := time.Now().Add(d.readinessTimeout)
	for {
		desc, err := d.DescribeTable(ctx, table)
		if err != nil && !appErrors.IsNotFound(err) {
			return err
		}
		if err == nil && desc.Status == StatusActive {
			return nil
		}

		if time.Now().After(deadline) {
			return appErrors.NewTransientStoreError(
				fmt.Sprintf("table %s did not become active within %s", table, d.readinessTimeout), nil)
		}
		select {
		case <-ctx.Done():
			return appErrors.NewTransientStoreError(
				fmt.Sprintf("wait for table %s interrupted", table), ctx.Err())
		case <-time.After(d.readinessInterval):
		}
	}
}

// WaitForIndexActive polls DescribeTable until the named index reports
// ACTIVE. An index that has not appeared yet is tolerated, since index
// creation lags the UpdateTable call.
func (d *DynamoDBStore) WaitForIndexActive(ctx context.Context, table, indexName string) error {
	deadline := time.Now().Add(d.readinessTimeout)
	for {
		desc, err := d.DescribeTable(ctx, table)
		if err != nil {
			return err
		}
		for _, idx := range desc.Indexes {
			if idx.Name == indexName && idx.Status == StatusActive {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return appErrors.NewTransientStoreError(
				fmt.Sprintf("index %s on table %s did not become active within %s", indexName, table, d.readinessTimeout), nil)
		}
		select {
		case <-ctx.Done():
			return appErrors.NewTransientStoreError(
				fmt.Sprintf("wait for index %s on table %s interrupted", indexName, table), ctx.Err())
		case <-time.After(d.readinessInterval):
		}
	}
}

func attributeDefinitions(schema TableSchema) []*dynamodb.AttributeDefinition {
	var defs []*dynamodb.AttributeDefinition
	seen := make(map[string]bool)
	add := func(k KeyDefinition) {
		if seen[k.Name] {
			return
		}
		seen[k.Name] = true
		defs = append(defs, &dynamodb.AttributeDefinition{
			AttributeName: aws.String(k.Name),
			AttributeType: aws.String(k.Type),
		})
	}

	add(schema.HashKey)
	if schema.RangeKey != nil {
		add(*schema.RangeKey)
	}
	for _, idx := range schema.Indexes {
		add(idx.HashKey)
		if idx.RangeKey != nil {
			add(*idx.RangeKey)
		}
	}
	return defs
}

func keySchemaElements(hash KeyDefinition, rangeKey *KeyDefinition) []*dynamodb.KeySchemaElement {
	elems := []*dynamodb.KeySchemaElement{
		{
			AttributeName: aws.String(hash.Name),
			KeyType:       aws.String(dynamodb.KeyTypeHash),
		},
	}
	if rangeKey != nil {
		elems = append(elems, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(rangeKey.Name),
			KeyType:       aws.String(dynamodb.KeyTypeRange),
		})
	}
	return elems
}
