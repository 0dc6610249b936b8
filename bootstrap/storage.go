package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"elisedb/config"
	"elisedb/storage"

	"go.uber.org/zap"
)

// diagnostics receives the FATAL banner printed when MongoDB stays unreachable
var diagnostics io.Writer = os.Stderr

// retryDelay returns the wait before retry attempt n (1-based)
var retryDelay = func(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

// newMongoDB opens the administrative connection
var newMongoDB = storage.NewMongoDB

// ConnectMongo connects to MongoDB, retrying connectivity failures up to
// mongodb.connect_retries times. Rejected credentials and provisioning steps
// are never retried.
func ConnectMongo(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*storage.MongoDB, error) {
	maxRetries := cfg.MongoDB.ConnectRetries
	opts := storage.MongoOptions{
		URI:              cfg.MongoDB.URI,
		ConnectTimeout:   cfg.MongoDB.ConnectTimeout,
		OperationTimeout: cfg.MongoDB.OperationTimeout,
		MaxPoolSize:      cfg.MongoDB.MaxPoolSize,
	}

	var mongoDB *storage.MongoDB
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			sugar.Infow("Retrying MongoDB connection",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", storage.ErrConnectivity, ctx.Err())
			}
		}

		attempts++
		mongoDB, lastErr = newMongoDB(ctx, opts, sugar)
		if lastErr == nil {
			break
		}

		sugar.Warnw("MongoDB connection attempt failed",
			"attempt", attempt+1,
			"error", lastErr)

		if !errors.Is(lastErr, storage.ErrConnectivity) {
			break
		}
	}

	if lastErr != nil {
		errMsg := ClassifyConnectionError(lastErr, cfg.MongoDB.URI)
		fmt.Fprintf(diagnostics, "\n========================================\n")
		fmt.Fprintf(diagnostics, "FATAL: MongoDB Connection Failed\n")
		fmt.Fprintf(diagnostics, "========================================\n")
		fmt.Fprintf(diagnostics, "%s\n", errMsg)
		fmt.Fprintf(diagnostics, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", attempts, lastErr)
	}

	sugar.Infow("Connected to MongoDB successfully", "uri", config.MaskURI(cfg.MongoDB.URI))
	return mongoDB, nil
}
