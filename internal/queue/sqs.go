package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/timmy/textfleet/internal/config"
)

const (
	sqsMaxBatch = 10
	sqsMaxWait  = 20 * time.Second
)

// SQSTransport implements Transport on Amazon SQS. Queues may be addressed
// by name or by URL; names are resolved once and cached.
type SQSTransport struct {
	client            *sqs.Client
	visibilityTimeout int

	mu   sync.RWMutex
	urls map[string]string
}

// NewSQSTransport creates an SQS client from the shared AWS settings.
func NewSQSTransport(ctx context.Context, cfg config.AWSConfig, visibilityTimeout int) (*SQSTransport, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SQSTransport{
		client:            client,
		visibilityTimeout: visibilityTimeout,
		urls:              make(map[string]string),
	}, nil
}

// Ensure creates the queue with the configured visibility timeout.
// CreateQueue is idempotent for identical attributes.
func (t *SQSTransport) Ensure(ctx context.Context, queue string) error {
	if isQueueURL(queue) {
		return nil
	}
	out, err := t.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(queue),
		Attributes: map[string]string{
			string(types.QueueAttributeNameVisibilityTimeout): strconv.Itoa(t.visibilityTimeout),
		},
	})
	if err != nil {
		return fmt.Errorf("create queue %s: %w", queue, err)
	}
	t.mu.Lock()
	t.urls[queue] = aws.ToString(out.QueueUrl)
	t.mu.Unlock()
	return nil
}

func (t *SQSTransport) Send(ctx context.Context, queue, body string) error {
	url, err := t.resolve(ctx, queue)
	if err != nil {
		return err
	}
	_, err = t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", queue, err)
	}
	return nil
}

func (t *SQSTransport) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error) {
	url, err := t.resolve(ctx, queue)
	if err != nil {
		return nil, err
	}
	if max < 1 {
		max = 1
	}
	if max > sqsMaxBatch {
		max = sqsMaxBatch
	}
	if wait > sqsMaxWait {
		wait = sqsMaxWait
	}

	out, err := t.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(url),
		MaxNumberOfMessages:         int32(max),
		WaitTimeSeconds:             int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", queue, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  count,
		})
	}
	return msgs, nil
}

func (t *SQSTransport) Delete(ctx context.Context, queue, receiptHandle string) error {
	url, err := t.resolve(ctx, queue)
	if err != nil {
		return err
	}
	_, err = t.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ReceiptHandleIsInvalid" {
			return fmt.Errorf("delete from %s: %w: %v", queue, ErrUnknownReceipt, err)
		}
		return fmt.Errorf("delete from %s: %w", queue, err)
	}
	return nil
}

func (t *SQSTransport) resolve(ctx context.Context, queue string) (string, error) {
	if isQueueURL(queue) {
		return queue, nil
	}

	t.mu.RLock()
	url, ok := t.urls[queue]
	t.mu.RUnlock()
	if ok {
		return url, nil
	}

	out, err := t.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queue)})
	if err != nil {
		var missing *types.QueueDoesNotExist
		if errors.As(err, &missing) {
			return "", fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
		}
		return "", fmt.Errorf("resolve queue %s: %w", queue, err)
	}

	url = aws.ToString(out.QueueUrl)
	t.mu.Lock()
	t.urls[queue] = url
	t.mu.Unlock()
	return url, nil
}

func isQueueURL(queue string) bool {
	return strings.HasPrefix(queue, "https://") || strings.HasPrefix(queue, "http://")
}
