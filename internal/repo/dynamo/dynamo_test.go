package dynamo

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// fakeTable understands the two key conditions the store issues.
type fakeTable struct {
	items   []map[string]types.AttributeValue
	putErr  error
	queries int
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries++
	mon := in.ExpressionAttributeValues[":m"].(*types.AttributeValueMemberS).Value
	since := ""
	if v, ok := in.ExpressionAttributeValues[":since"]; ok {
		since = v.(*types.AttributeValueMemberS).Value
	}

	var out []map[string]types.AttributeValue
	for _, it := range f.items {
		if str(it, attrMonitor) == mon && str(it, attrSort) >= since {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return str(out[i], attrSort) < str(out[j], attrSort) })
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(out) {
		out = out[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func TestCheckStore_AppendListUptime(t *testing.T) {
	ctx := context.Background()
	table := &fakeTable{}
	s := NewCheckStore(table, "checks")
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	valid := true
	exp := now.Add(30 * 24 * time.Hour)
	add := func(at time.Time, outcome domain.CheckOutcome, v domain.Verdict) {
		c := &domain.Check{MonitorID: "M1", CheckedAt: at, Outcome: outcome, Verdict: v, StatusCode: 200,
			ResponseTimeMS: 42, SSLValid: &valid, SSLExpiresAt: &exp}
		if err := s.Append(ctx, c); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if c.ID == "" {
			t.Fatalf("Append should assign an id")
		}
	}
	add(now.Add(-48*time.Hour), domain.OutcomeFailure, domain.VerdictDown)
	add(now.Add(-3*time.Minute), domain.OutcomeSuccess, domain.VerdictUp)
	add(now.Add(-2*time.Minute), domain.OutcomeFailure, domain.VerdictDown)
	add(now.Add(-90*time.Second), domain.OutcomeSkipped, "")
	add(now.Add(-1*time.Minute), domain.OutcomeSuccess, domain.VerdictUp)

	up, err := s.Uptime(ctx, "M1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Uptime: %v", err)
	}
	if up < 66.6 || up > 66.7 {
		t.Fatalf("want ~66.67%% uptime, got %v", up)
	}
	if up, _ := s.Uptime(ctx, "other", now.Add(-time.Hour)); up != 100 {
		t.Fatalf("no history should be 100, got %v", up)
	}

	hist, err := s.ListByMonitor(ctx, "M1", 2)
	if err != nil {
		t.Fatalf("ListByMonitor: %v", err)
	}
	if len(hist) != 2 || !hist[0].CheckedAt.Equal(now.Add(-time.Minute)) {
		t.Fatalf("want newest first, got %+v", hist)
	}
	c := hist[0]
	if c.Verdict != domain.VerdictUp || c.ResponseTimeMS != 42 || c.SSLValid == nil || !*c.SSLValid ||
		c.SSLExpiresAt == nil || !c.SSLExpiresAt.Equal(exp) || c.KeywordFound != nil {
		t.Fatalf("item did not convert back: %+v", c)
	}
}

func TestCheckStore_PutErrorWrapped(t *testing.T) {
	boom := errors.New("throttled")
	s := NewCheckStore(&fakeTable{putErr: boom}, "checks")
	err := s.Append(context.Background(), &domain.Check{MonitorID: "M1", CheckedAt: time.Now()})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped put error, got %v", err)
	}
}

func TestFromItem_BadSortKey(t *testing.T) {
	_, err := fromItem(map[string]types.AttributeValue{attrSort: &types.AttributeValueMemberS{Value: "x"}})
	if err == nil {
		t.Fatalf("want error for malformed sort key")
	}
}
