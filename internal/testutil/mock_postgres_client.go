package testutil

import (
	"context"

	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

// MockPostgresClient is a mock implementation of postgres client for testing.
// Services under test run against in-memory repositories, so no statement
// ever reaches a real querier.
type MockPostgresClient struct {
	logger *logger.Logger
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) postgres.IClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// If we're already in a transaction, reuse it
	if tx := c.TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	// For testing, we just execute the function without a real transaction
	return fn(ctx)
}

// TxFromContext returns the transaction from context if it exists
func (c *MockPostgresClient) TxFromContext(ctx context.Context) *postgres.Tx {
	if tx, ok := postgres.GetTx(ctx); ok {
		return tx
	}
	return nil
}

// Querier panics if reached. In-memory repositories never touch SQL; a panic
// here means a test wired a real repository against the mock client.
func (c *MockPostgresClient) Querier(ctx context.Context) postgres.Querier {
	panic("testutil: MockPostgresClient.Querier called; tests must use in-memory repositories")
}
