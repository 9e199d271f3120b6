// Package queue carries JSON messages between the client, coordinator and workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/textfleet/internal/config"
)

// Message is one received delivery. ReceiptHandle is required to delete it.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}

// Transport is an at-least-once queue. A received message becomes visible
// again after the visibility timeout unless it is deleted.
type Transport interface {
	// Ensure creates the queue if it does not exist
	Ensure(ctx context.Context, queue string) error

	// Send enqueues one message body
	Send(ctx context.Context, queue, body string) error

	// Receive long-polls for up to max messages, waiting at most wait
	Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error)

	// Delete acknowledges a message
	Delete(ctx context.Context, queue, receiptHandle string) error
}

var (
	ErrQueueNotFound  = errors.New("queue not found")
	ErrUnknownReceipt = errors.New("unknown or expired receipt handle")
)

// Names are the four channels of the pipeline.
type Names struct {
	AppToManager    string
	ManagerToApp    string
	ManagerToWorker string
	WorkerToManager string
}

// NamesFromConfig copies queue names out of the config section.
func NamesFromConfig(cfg config.QueuesConfig) Names {
	return Names{
		AppToManager:    cfg.AppToManager,
		ManagerToApp:    cfg.ManagerToApp,
		ManagerToWorker: cfg.ManagerToWorker,
		WorkerToManager: cfg.WorkerToManager,
	}
}

// All lists every channel name.
func (n Names) All() []string {
	return []string{n.AppToManager, n.ManagerToApp, n.ManagerToWorker, n.WorkerToManager}
}

// New creates a Transport for the configured driver.
func New(ctx context.Context, cfg config.QueuesConfig, awsCfg config.AWSConfig) (Transport, error) {
	visibility := time.Duration(cfg.VisibilityTimeout) * time.Second
	switch cfg.Driver {
	case "", "sqs":
		return NewSQSTransport(ctx, awsCfg, cfg.VisibilityTimeout)
	case "memory":
		return NewMemoryTransport(visibility), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
