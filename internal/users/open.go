package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/finboard/finboard/backend/gateway/internal/config"
	"github.com/finboard/finboard/backend/gateway/internal/database"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
)

var ErrNoStoreConfigured = errors.New("neither DATABASE_DSN nor MONGODB_URI is set")

// Store is an opened credential repository with its readiness check.
type Store struct {
	Repository
	Ping  func(ctx context.Context) error
	Close func()
}

// Open connects to Postgres when DATABASE_DSN is set (running migrations),
// otherwise to MongoDB.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch {
	case cfg.Postgres.DSN != "":
		var db *sql.DB
		err := withRetry(ctx, "postgres", func() error {
			var err error
			db, err = database.ConnectPostgres(ctx, cfg.Postgres.DSN, 10*time.Second)
			return err
		})
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Infof("using postgres credential store")
		return &Store{
			Repository: NewPostgresRepository(db),
			Ping:       db.PingContext,
			Close:      func() { _ = db.Close() },
		}, nil

	case cfg.MongoDB.URI != "":
		var client *mongo.Client
		err := withRetry(ctx, "mongodb", func() error {
			var err error
			client, err = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			return err
		})
		if err != nil {
			return nil, err
		}
		col := client.Database(cfg.MongoDB.Database).Collection("credentials")
		if err := database.EnsureCredentialIndexes(ctx, col); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Infof("using mongodb credential store")
		return &Store{
			Repository: NewMongoRepository(col),
			Ping:       func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close:      func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}
	return nil, ErrNoStoreConfigured
}

// retryBackoff is shortened by tests.
var retryBackoff = time.Second

// withRetry tolerates startup races with the database container.
func withRetry(ctx context.Context, name string, connect func() error) error {
	const maxAttempts = 5
	backoff := retryBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = connect(); err == nil {
			return nil
		}
		logger.Warnf("attempt %d/%d: failed to connect to %s: %v", attempt, maxAttempts, name, err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s unreachable after %d attempts: %w", name, maxAttempts, err)
}
