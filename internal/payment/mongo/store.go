// Package mongo stores pending payments and invoices in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	"github.com/frahmantamala/coaching-payments/internal/payment/document"
)

const (
	colPendingPayments = "pending_payments"
	colInvoices        = "invoices"
)

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, cfg internal.MongoConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// Migrate creates the indexes the repositories query on.
func Migrate(ctx context.Context, db *mongo.Database) error {
	for col, models := range migrationIndexes() {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", col, err)
		}
	}
	return nil
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPendingPayments: {
			{
				Keys:    bson.D{{Key: pendingpayment.FieldGatewaySessionID, Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colInvoices: {
			{Keys: bson.D{{Key: document.FieldClientEmail, Value: 1}, {Key: document.FieldCreatedAt, Value: -1}}},
			{
				Keys:    bson.D{{Key: document.FieldGatewaySessionID, Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
