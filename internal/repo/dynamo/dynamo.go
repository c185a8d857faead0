// Package dynamo stores check history in a DynamoDB table keyed by monitor id
// (partition) and check time (sort).
package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
)

const (
	attrMonitor = "monitorId"
	attrSort    = "checkedAt"

	// Fixed width so lexical order matches time order.
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// API is the subset of the DynamoDB client the store calls.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// NewClient loads the default AWS configuration for region.
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

type CheckStore struct {
	api   API
	table string
}

func NewCheckStore(api API, table string) *CheckStore {
	return &CheckStore{api: api, table: table}
}

func (s *CheckStore) Append(ctx context.Context, c *domain.Check) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      toItem(c),
	})
	if err != nil {
		return fmt.Errorf("failed to store check %s: %w", c.ID, err)
	}
	return nil
}

func (s *CheckStore) Uptime(ctx context.Context, id domain.MonitorID, since time.Time) (float64, error) {
	p := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#m = :m AND #s >= :since"),
		ProjectionExpression:   aws.String("outcome, verdict"),
		ExpressionAttributeNames: map[string]string{
			"#m": attrMonitor,
			"#s": attrSort,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":     &types.AttributeValueMemberS{Value: string(id)},
			":since": &types.AttributeValueMemberS{Value: since.UTC().Format(sortTimeLayout)},
		},
	})

	var up, total int
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("query uptime %s: %w", id, err)
		}
		for _, item := range page.Items {
			if str(item, "outcome") == string(domain.OutcomeSkipped) {
				continue
			}
			total++
			if str(item, "verdict") == string(domain.VerdictUp) {
				up++
			}
		}
	}
	return repo.UptimePercent(up, total), nil
}

// ListByMonitor returns newest first.
func (s *CheckStore) ListByMonitor(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Check, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#m = :m"),
		ExpressionAttributeNames: map[string]string{"#m": attrMonitor},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberS{Value: string(id)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query checks %s: %w", id, err)
	}
	checks := make([]domain.Check, 0, len(out.Items))
	for _, item := range out.Items {
		c, err := fromItem(item)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func sortKey(c *domain.Check) string {
	return c.CheckedAt.UTC().Format(sortTimeLayout) + "#" + c.ID
}

func toItem(c *domain.Check) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrMonitor:      &types.AttributeValueMemberS{Value: string(c.MonitorID)},
		attrSort:         &types.AttributeValueMemberS{Value: sortKey(c)},
		"id":             &types.AttributeValueMemberS{Value: c.ID},
		"outcome":        &types.AttributeValueMemberS{Value: string(c.Outcome)},
		"statusCode":     &types.AttributeValueMemberN{Value: strconv.Itoa(c.StatusCode)},
		"responseTimeMs": &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ResponseTimeMS, 10)},
	}
	if c.Error != "" {
		item["error"] = &types.AttributeValueMemberS{Value: c.Error}
	}
	if c.Verdict != "" {
		item["verdict"] = &types.AttributeValueMemberS{Value: string(c.Verdict)}
	}
	if c.SSLValid != nil {
		item["sslValid"] = &types.AttributeValueMemberBOOL{Value: *c.SSLValid}
	}
	if c.SSLExpiresAt != nil {
		item["sslExpiresAt"] = &types.AttributeValueMemberS{Value: c.SSLExpiresAt.UTC().Format(time.RFC3339)}
	}
	if c.KeywordFound != nil {
		item["keywordFound"] = &types.AttributeValueMemberBOOL{Value: *c.KeywordFound}
	}
	return item
}

func fromItem(item map[string]types.AttributeValue) (domain.Check, error) {
	c := domain.Check{
		ID:        str(item, "id"),
		MonitorID: domain.MonitorID(str(item, attrMonitor)),
		Outcome:   domain.CheckOutcome(str(item, "outcome")),
		Error:     str(item, "error"),
		Verdict:   domain.Verdict(str(item, "verdict")),
	}

	sk := str(item, attrSort)
	if len(sk) < len(sortTimeLayout) {
		return domain.Check{}, fmt.Errorf("bad sort key %q", sk)
	}
	at, err := time.Parse(sortTimeLayout, sk[:len(sortTimeLayout)])
	if err != nil {
		return domain.Check{}, fmt.Errorf("parse sort key %q: %w", sk, err)
	}
	c.CheckedAt = at

	if v, ok := item["statusCode"].(*types.AttributeValueMemberN); ok {
		c.StatusCode, _ = strconv.Atoi(v.Value)
	}
	if v, ok := item["responseTimeMs"].(*types.AttributeValueMemberN); ok {
		c.ResponseTimeMS, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := item["sslValid"].(*types.AttributeValueMemberBOOL); ok {
		b := v.Value
		c.SSLValid = &b
	}
	if s := str(item, "sslExpiresAt"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			c.SSLExpiresAt = &t
		}
	}
	if v, ok := item["keywordFound"].(*types.AttributeValueMemberBOOL); ok {
		b := v.Value
		c.KeywordFound = &b
	}
	return c, nil
}

func str(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
