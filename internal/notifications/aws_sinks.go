package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/config"
	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/storage"
)

// SNSPublisher is the subset of the SNS client used by SNSSink
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes every event as JSON to a topic
type SNSSink struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSSink(client SNSPublisher, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Emit(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// S3ArchiveSink stores each event as a JSON object under <prefix>/<yyyy>/<mm>/<dd>/<type>/<id>.json
type S3ArchiveSink struct {
	client storage.S3Client
	bucket string
	prefix string
}

func NewS3ArchiveSink(client storage.S3Client, bucket, prefix string) *S3ArchiveSink {
	return &S3ArchiveSink{client: client, bucket: bucket, prefix: prefix}
}

// ArchiveKey returns the object key an event is stored under
func (s *S3ArchiveSink) ArchiveKey(event Event) string {
	return path.Join(s.prefix, event.OccurredAt.UTC().Format("2006/01/02"), string(event.Type), event.ID.String()+".json")
}

func (s *S3ArchiveSink) Emit(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.client.Upload(ctx, s.bucket, s.ArchiveKey(event), "application/json", bytes.NewReader(body))
}

// DynamoPutter is the subset of the DynamoDB client used by DynamoSink
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// creditItem is the DynamoDB projection of a minted transaction, keyed by project
type creditItem struct {
	ProjectID     string  `dynamodbav:"project_id"`
	TransactionID string  `dynamodbav:"transaction_id"`
	OwnerID       string  `dynamodbav:"owner_id"`
	TxRef         string  `dynamodbav:"tx_ref"`
	CO2Tons       float64 `dynamodbav:"co2_tons"`
	TokensMinted  int64   `dynamodbav:"tokens_minted"`
	TotalRevenue  int64   `dynamodbav:"total_revenue_minor"`
	Community     int64   `dynamodbav:"share_community_minor"`
	Panchayat     int64   `dynamodbav:"share_panchayat_minor"`
	Platform      int64   `dynamodbav:"share_platform_minor"`
	Buffer        int64   `dynamodbav:"share_buffer_minor"`
	MintedAt      string  `dynamodbav:"minted_at"`
}

// DynamoSink mirrors minted transactions into a table with one item per project.
// Repeated emissions for the same project are ignored.
type DynamoSink struct {
	client DynamoPutter
	table  string
}

func NewDynamoSink(client DynamoPutter, table string) *DynamoSink {
	return &DynamoSink{client: client, table: table}
}

func (s *DynamoSink) Emit(ctx context.Context, event Event) error {
	if event.Type != EventCreditsMinted || event.Transaction == nil {
		return nil
	}
	tx := event.Transaction
	item, err := attributevalue.MarshalMap(creditItem{
		ProjectID:     tx.ProjectID.String(),
		TransactionID: tx.ID.String(),
		OwnerID:       tx.OwnerID,
		TxRef:         tx.TxRef,
		CO2Tons:       tx.CO2Tons,
		TokensMinted:  tx.TokensMinted,
		TotalRevenue:  int64(tx.TotalRevenue),
		Community:     int64(tx.Shares.Community),
		Panchayat:     int64(tx.Shares.Panchayat),
		Platform:      int64(tx.Shares.Platform),
		Buffer:        int64(tx.Shares.Buffer),
		MintedAt:      tx.MintedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credit item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(project_id)"),
	})
	if err != nil {
		var conditionFailed *dynamotypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil
		}
		return fmt.Errorf("failed to put credit item: %w", err)
	}
	return nil
}

// NewAWSSinks builds the sinks enabled in configuration. It returns no sinks when none are configured.
func NewAWSSinks(ctx context.Context, cfg config.SinksConfig, logger *zap.Logger) ([]Sink, error) {
	if cfg.SNSTopicARN == "" && cfg.S3Bucket == "" && cfg.DynamoDBTable == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var sinks []Sink
	if cfg.SNSTopicARN != "" {
		sinks = append(sinks, NewSNSSink(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN))
		logger.Info("SNS ledger sink enabled", zap.String("topic_arn", cfg.SNSTopicARN))
	}
	if cfg.S3Bucket != "" {
		client := storage.NewS3Client(s3.NewFromConfig(awsCfg))
		sinks = append(sinks, NewS3ArchiveSink(client, cfg.S3Bucket, cfg.S3Prefix))
		logger.Info("S3 ledger archive enabled", zap.String("bucket", cfg.S3Bucket))
	}
	if cfg.DynamoDBTable != "" {
		sinks = append(sinks, NewDynamoSink(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable))
		logger.Info("DynamoDB ledger mirror enabled", zap.String("table", cfg.DynamoDBTable))
	}
	return sinks, nil
}
