package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "REVIEW#"
	skMeta   = "META"
	skRun    = "RUN#"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements JobStore on a DynamoDB table with a string PK/SK
// key schema and TTL on expiresAt.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func jobPK(jobID string) string {
	return pkPrefix + jobID
}

func runSK(index int) string {
	return fmt.Sprintf("%s%02d", skRun, index)
}

func expiresAt() int64 {
	return time.Now().Add(JobTTL).Unix()
}

// putItem marshals data and writes it with PK, SK and TTL attributes.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// queryJob returns every item of a job, following pagination.
func (s *DynamoStore) queryJob(ctx context.Context, jobID string) ([]map[string]types.AttributeValue, error) {
	pk := jobPK(jobID)
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	}

	var items []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		items = append(items, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return items, nil
}

func (s *DynamoStore) PutJob(ctx context.Context, job *Job) error {
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.putItem(ctx, jobPK(job.ID), skMeta, job); err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	for i := range job.Runs {
		if err := s.PutRun(ctx, job.ID, &job.Runs[i]); err != nil {
			return err
		}
	}

	log.Debug().
		Str("jobId", job.ID).
		Str("status", job.Status).
		Int("assets", len(job.Assets)).
		Int("runs", len(job.Runs)).
		Msg("Review job persisted")
	return nil
}

func (s *DynamoStore) GetJob(ctx context.Context, id string) (*Job, error) {
	items, err := s.queryJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job *Job
	var runs []Run
	for _, item := range items {
		sk, _ := item["SK"].(*types.AttributeValueMemberS)
		if sk == nil {
			continue
		}
		switch {
		case sk.Value == skMeta:
			var j Job
			if err := attributevalue.UnmarshalMap(item, &j); err != nil {
				return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
			}
			job = &j
		case strings.HasPrefix(sk.Value, skRun):
			var r Run
			if err := attributevalue.UnmarshalMap(item, &r); err != nil {
				return nil, fmt.Errorf("unmarshal run %s/%s: %w", id, sk.Value, err)
			}
			runs = append(runs, r)
		}
	}
	if job == nil {
		log.Debug().Str("jobId", id).Bool("found", false).Msg("GetJob: job not found")
		return nil, nil
	}

	slices.SortFunc(runs, func(a, b Run) int { return a.Index - b.Index })
	job.ID = id
	job.Runs = runs
	return job, nil
}

func (s *DynamoStore) PutRun(ctx context.Context, jobID string, run *Run) error {
	if run.UpdatedAt == 0 {
		run.UpdatedAt = time.Now().Unix()
	}
	if err := s.putItem(ctx, jobPK(jobID), runSK(run.Index), run); err != nil {
		return fmt.Errorf("put run %s/%d: %w", jobID, run.Index, err)
	}
	return nil
}

func (s *DynamoStore) UpdateStatus(ctx context.Context, jobID, status, errMsg string) error {
	expr := "SET #status = :status, updatedAt = :now"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: status},
		":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
	}
	names := map[string]string{"#status": "status", "#error": "error"}
	if errMsg != "" {
		expr += ", #error = :error"
		values[":error"] = &types.AttributeValueMemberS{Value: errMsg}
	} else {
		expr += " REMOVE #error"
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update status %s: %w", jobID, err)
	}

	log.Debug().Str("jobId", jobID).Str("status", status).Msg("Review job status updated")
	return nil
}

func (s *DynamoStore) DeleteJob(ctx context.Context, id string) error {
	items, err := s.queryJob(ctx, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	keys := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
	}

	for chunk := range slices.Chunk(keys, maxBatchWrite) {
		requests := make([]types.WriteRequest, 0, len(chunk))
		for _, key := range chunk {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
		}
		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem delete (%d items): %w", len(requests), err)
		}
		// Unprocessed items are left to the TTL.
	}
	return nil
}
