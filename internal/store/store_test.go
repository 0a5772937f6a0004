package store

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fpang/creative-review/internal/creative"
)

// fakeDynamo is an in-memory table keyed by PK and SK.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for k, item := range f.items {
		if strings.HasPrefix(k, pk+"|") {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	item, ok := f.items[k]
	if !ok {
		item = map[string]types.AttributeValue{"PK": in.Key["PK"], "SK": in.Key["SK"]}
		f.items[k] = item
	}
	item["status"] = in.ExpressionAttributeValues[":status"]
	item["updatedAt"] = in.ExpressionAttributeValues[":now"]
	if v, ok := in.ExpressionAttributeValues[":error"]; ok {
		item["error"] = v
	} else {
		delete(item, "error")
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			if r.DeleteRequest != nil {
				delete(f.items, keyOf(r.DeleteRequest.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func testStores(t *testing.T) map[string]JobStore {
	t.Helper()
	return map[string]JobStore{
		"memory": NewMemoryStore(),
		"dynamo": NewDynamoStore(newFakeDynamo(), "reviews"),
	}
}

func sampleJob() *Job {
	return &Job{
		ID:       "review-0123456789abcdef0123456789abcdef",
		Status:   StatusPending,
		Campaign: creative.Campaign{Channel: "Instagram", Device: "Mobile"},
		Assets: []AssetRef{
			{Filename: "a.png", MIMEType: "image/png", Size: 10},
			{Filename: "b.mp4", MIMEType: "video/mp4", Size: 20, Key: "review-x/1-b.mp4"},
		},
		Runs: []Run{
			{Index: 0, Assets: []string{"a.png"}, Stage: "STAGED"},
			{Index: 1, Assets: []string{"b.mp4"}, Stage: "STAGED"},
		},
	}
}

func TestJobStore_RoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := sampleJob()
			if err := s.PutJob(ctx, job); err != nil {
				t.Fatalf("PutJob: %v", err)
			}
			if job.CreatedAt == 0 || job.UpdatedAt == 0 {
				t.Error("timestamps should be set")
			}

			got, err := s.GetJob(ctx, job.ID)
			if err != nil {
				t.Fatalf("GetJob: %v", err)
			}
			if got == nil {
				t.Fatal("expected job, got nil")
			}
			if got.ID != job.ID || got.Status != StatusPending {
				t.Errorf("unexpected job %+v", got)
			}
			if got.Campaign.Channel != "Instagram" || got.Campaign.Device != "Mobile" {
				t.Errorf("campaign not persisted: %+v", got.Campaign)
			}
			if len(got.Assets) != 2 || got.Assets[1].Key != "review-x/1-b.mp4" {
				t.Errorf("assets not persisted: %+v", got.Assets)
			}
			if len(got.Runs) != 2 || got.Runs[1].Assets[0] != "b.mp4" {
				t.Errorf("runs not persisted: %+v", got.Runs)
			}
		})
	}
}

func TestJobStore_Missing(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetJob(context.Background(), "review-missing")
			if err != nil || got != nil {
				t.Errorf("expected nil, nil; got %v, %v", got, err)
			}
		})
	}
}

func TestJobStore_PutRunAndStatus(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := sampleJob()
			if err := s.PutJob(ctx, job); err != nil {
				t.Fatal(err)
			}

			if err := s.PutRun(ctx, job.ID, &Run{Index: 1, Assets: []string{"b.mp4"}, Stage: "CLEANED_UP", ErrorKind: "timeout", Error: "timed out", Done: true}); err != nil {
				t.Fatalf("PutRun: %v", err)
			}
			if err := s.PutRun(ctx, job.ID, &Run{Index: 0, Assets: []string{"a.png"}, Stage: "CLEANED_UP", Text: "ok", Done: true}); err != nil {
				t.Fatalf("PutRun: %v", err)
			}
			if err := s.UpdateStatus(ctx, job.ID, StatusError, "1 of 2 reviews failed"); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}

			got, err := s.GetJob(ctx, job.ID)
			if err != nil || got == nil {
				t.Fatalf("GetJob: %v, %v", got, err)
			}
			if got.Status != StatusError || got.Error != "1 of 2 reviews failed" {
				t.Errorf("status not updated: %s %q", got.Status, got.Error)
			}
			if len(got.Runs) != 2 {
				t.Fatalf("expected 2 runs, got %d", len(got.Runs))
			}
			if got.Runs[0].Index != 0 || got.Runs[0].Text != "ok" {
				t.Errorf("unexpected run 0: %+v", got.Runs[0])
			}
			if !got.Runs[1].Failed() {
				t.Errorf("run 1 should be failed: %+v", got.Runs[1])
			}
			if !got.Finished() {
				t.Error("job should be finished")
			}
			if got.Campaign.Channel != "Instagram" {
				t.Error("UpdateStatus must not touch other fields")
			}

			if err := s.UpdateStatus(ctx, job.ID, StatusComplete, ""); err != nil {
				t.Fatal(err)
			}
			got, _ = s.GetJob(ctx, job.ID)
			if got.Error != "" {
				t.Errorf("error should be cleared, got %q", got.Error)
			}
		})
	}
}

func TestJobStore_Delete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := sampleJob()
			if err := s.PutJob(ctx, job); err != nil {
				t.Fatal(err)
			}
			if err := s.DeleteJob(ctx, job.ID); err != nil {
				t.Fatalf("DeleteJob: %v", err)
			}
			got, err := s.GetJob(ctx, job.ID)
			if err != nil || got != nil {
				t.Errorf("expected job to be gone, got %v, %v", got, err)
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.PutJob(ctx, sampleJob()); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, sampleJob().ID)
	got.Runs[0].Stage = "MUTATED"
	again, _ := s.GetJob(ctx, sampleJob().ID)
	if again.Runs[0].Stage == "MUTATED" {
		t.Error("GetJob should return a copy")
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{StatusComplete, StatusError, StatusCanceled} {
		if !Terminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []string{StatusPending, StatusProcessing} {
		if Terminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
