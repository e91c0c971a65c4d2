// Package db opens the record store backend selected in configuration.
package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"airpay/internal/config"
	"airpay/internal/database"
	"airpay/internal/store"
	"airpay/internal/store/file"
	"airpay/internal/store/mongo"
)

// Stores bundles the two record stores and their shared connection
type Stores struct {
	Transactions store.TransactionStore
	Accounts     store.AccountStore

	close func() error
}

// Close releases the backend connection, if any
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open returns the stores for cfg.Store.Backend
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.Store.Backend {
	case config.StoreFile:
		logger.Info("Using file record store",
			zap.String("transactions", cfg.Store.TransactionsFile),
			zap.String("users", cfg.Store.UsersFile))
		return &Stores{
			Transactions: file.NewTransactionLog(cfg.Store.TransactionsFile),
			Accounts:     file.NewAccountFile(cfg.Store.UsersFile),
		}, nil

	case config.StorePostgres:
		pg, err := database.Connect(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(pg); err != nil {
			pg.Close()
			return nil, err
		}
		logger.Info("Using postgres record store", zap.String("db_host", cfg.Database.Host))
		return &Stores{
			Transactions: database.NewTransactionStore(pg),
			Accounts:     database.NewAccountStore(pg),
			close:        pg.Close,
		}, nil

	case config.StoreMongo:
		m, err := mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("Using mongodb record store", zap.String("database", cfg.Mongo.Database))
		return &Stores{
			Transactions: m.Transactions(),
			Accounts:     m.Accounts(),
			close:        m.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
}
