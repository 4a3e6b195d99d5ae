package mongox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Open builds a client without dialing; connectivity is established lazily by
// the driver on first operation, or explicitly via Ping/PingWithRetry.
func Open(mongoURI string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetServerSelectionTimeout(2 * time.Second).
		SetConnectTimeout(2 * time.Second)
	return mongo.Connect(context.Background(), opts)
}

func Ping(ctx context.Context, client *mongo.Client) error {
	if client == nil {
		return errors.New("mongo not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}

// PingWithRetry probes the server up to attempts times with a fixed backoff
// between attempts. It returns the last ping error on exhaustion.
func PingWithRetry(ctx context.Context, client *mongo.Client, attempts int, backoff time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = Ping(ctx, client); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func ReadyCheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return Ping(ctx, client)
	}
}
