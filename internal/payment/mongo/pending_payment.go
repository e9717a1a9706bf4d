package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	paymentpkg "github.com/frahmantamala/coaching-payments/internal/payment"
	"github.com/frahmantamala/coaching-payments/internal/payment/document"
)

type PendingPaymentRepository struct {
	col *mongo.Collection
}

func NewPendingPaymentRepository(db *mongo.Database) paymentpkg.PendingPaymentRepository {
	return &PendingPaymentRepository{col: db.Collection(colPendingPayments)}
}

func (r *PendingPaymentRepository) findOne(ctx context.Context, filter bson.M) (*pendingpayment.PendingPayment, error) {
	var d document.PendingPayment
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, apperrors.ErrPendingPaymentNotFound
		}
		return nil, err
	}
	return d.ToDomain(), nil
}

func (r *PendingPaymentRepository) GetByID(ctx context.Context, id string) (*pendingpayment.PendingPayment, error) {
	p, err := r.findOne(ctx, bson.M{document.FieldID: id})
	if err != nil && !errors.Is(err, apperrors.ErrPendingPaymentNotFound) {
		return nil, fmt.Errorf("failed to get pending payment %s: %w", id, err)
	}
	return p, err
}

func (r *PendingPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*pendingpayment.PendingPayment, error) {
	p, err := r.findOne(ctx, bson.M{pendingpayment.FieldGatewaySessionID: sessionID})
	if err != nil && !errors.Is(err, apperrors.ErrPendingPaymentNotFound) {
		return nil, fmt.Errorf("failed to get pending payment by session: %w", err)
	}
	return p, err
}

func (r *PendingPaymentRepository) Create(ctx context.Context, p *pendingpayment.PendingPayment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	if _, err := r.col.InsertOne(ctx, document.FromPendingPayment(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return paymentpkg.ErrPaymentAlreadyCompleted
		}
		return fmt.Errorf("failed to create pending payment: %w", err)
	}
	return nil
}

// Complete only matches a record that is not completed yet; the filter and
// the write are a single atomic operation.
func (r *PendingPaymentRepository) Complete(ctx context.Context, id string, c pendingpayment.Completion) error {
	filter := bson.M{
		document.FieldID:           id,
		pendingpayment.FieldStatus: bson.M{"$ne": string(pendingpayment.StatusCompleted)},
	}
	update := bson.M{
		"$set": bson.M(c.Payload()),
		"$inc": bson.M{pendingpayment.FieldVersion: 1},
	}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to complete pending payment %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return paymentpkg.ErrPaymentAlreadyCompleted
}
