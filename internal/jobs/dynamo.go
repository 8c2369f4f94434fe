package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// jobItem is the DynamoDB record for a job. GSI1 orders all jobs by
// creation time.
type jobItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`
	Job
}

const (
	jobSK     = "METADATA"
	jobsGSIPK = "JOBS"
)

func jobKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "JOB#" + id},
		"SK": &types.AttributeValueMemberS{Value: jobSK},
	}
}

// DynamoStore keeps jobs in a single DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB store.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

// Create inserts a new job. It fails if the ID is already taken.
func (s *DynamoStore) Create(ctx context.Context, job Job) error {
	item := jobItem{
		PK:     "JOB#" + job.ID,
		SK:     jobSK,
		GSI1PK: jobsGSIPK,
		GSI1SK: job.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + job.ID,
		Job:    job,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

func (s *DynamoStore) UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error {
	return s.update(ctx, id, "SET #status = :status, progressPercent = :pct, stageMessage = :msg, updatedAt = :now",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.4f", percent)},
			":msg":    &types.AttributeValueMemberS{Value: message},
		})
}

// Complete marks the job complete with its artifacts.
func (s *DynamoStore) Complete(ctx context.Context, id string, result Result) error {
	av, err := attributevalue.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.update(ctx, id, "SET #status = :status, progressPercent = :pct, stageMessage = :msg, #result = :result, updatedAt = :now",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(StatusComplete)},
			":pct":    &types.AttributeValueMemberN{Value: "1"},
			":msg":    &types.AttributeValueMemberS{Value: "Complete"},
			":result": av,
		})
}

// Fail marks the job failed with an error message.
func (s *DynamoStore) Fail(ctx context.Context, id, kind, message string) error {
	return s.update(ctx, id, "SET #status = :status, errorMessage = :err, errorKind = :kind, stageMessage = :msg, updatedAt = :now",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":err":    &types.AttributeValueMemberS{Value: message},
			":kind":   &types.AttributeValueMemberS{Value: kind},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + message},
		})
}

func (s *DynamoStore) update(ctx context.Context, id, expr string, values map[string]types.AttributeValue) error {
	values[":now"] = &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)}
	names := map[string]string{"#status": "status"}
	if _, ok := values[":result"]; ok {
		names["#result"] = "result"
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       jobKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (Job, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       jobKey(id),
	})
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	if result.Item == nil {
		return Job{}, ErrNotFound
	}

	var item jobItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return item.Job, nil
}

// List queries GSI1 newest first.
func (s *DynamoStore) List(ctx context.Context, limit int, cursor string) ([]Job, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: jobsGSIPK},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		prev, err := s.Get(ctx, cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		key := jobKey(cursor)
		key["GSI1PK"] = &types.AttributeValueMemberS{Value: jobsGSIPK}
		key["GSI1SK"] = &types.AttributeValueMemberS{Value: prev.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + cursor}
		input.ExclusiveStartKey = key
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}

	var items []jobItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal job list: %w", err)
	}
	jobs := make([]Job, len(items))
	for i, it := range items {
		jobs[i] = it.Job
	}

	var next string
	if result.LastEvaluatedKey != nil && len(jobs) > 0 {
		next = jobs[len(jobs)-1].ID
	}
	return jobs, next, nil
}

func (s *DynamoStore) Close() error { return nil }
