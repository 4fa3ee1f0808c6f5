package store

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/clipswift/internal/config"
)

// Open builds the state store named by cfg.Backend. The returned close
// function releases whatever connection the store holds.
func Open(ctx context.Context, cfg config.StateConfig) (StateStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path), noop, nil
	case "memory":
		return NewMemoryStore(), noop, nil
	case "postgres":
		db, err := ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := NewPostgresStateStore(db, cfg.DatabaseURL)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("create state table: %w", err)
		}
		return s, db.Close, nil
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewDynamoStateStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, cfg.Profile), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
}
