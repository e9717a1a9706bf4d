package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	paymentpkg "github.com/frahmantamala/coaching-payments/internal/payment"
	"github.com/frahmantamala/coaching-payments/internal/payment/document"
)

type InvoiceRepository struct {
	col *mongo.Collection
}

func NewInvoiceRepository(db *mongo.Database) paymentpkg.InvoiceRepository {
	return &InvoiceRepository{col: db.Collection(colInvoices)}
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	var d document.Invoice
	if err := r.col.FindOne(ctx, bson.M{document.FieldID: id}).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, apperrors.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	return d.ToDomain(), nil
}

func (r *InvoiceRepository) LatestByClientEmail(ctx context.Context, email string) (*invoice.Invoice, error) {
	invoices, err := r.ListByClientEmail(ctx, email, 1)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, apperrors.ErrInvoiceNotFound
	}
	return invoices[0], nil
}

func (r *InvoiceRepository) GetBySessionID(ctx context.Context, sessionID string) (*invoice.Invoice, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: document.FieldUpdatedAt, Value: -1}})
	var d document.Invoice
	if err := r.col.FindOne(ctx, bson.M{document.FieldGatewaySessionID: sessionID}, opts).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, apperrors.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice by session %s: %w", sessionID, err)
	}
	return d.ToDomain(), nil
}

func (r *InvoiceRepository) ListByClientEmail(ctx context.Context, email string, limit int) ([]*invoice.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: document.FieldCreatedAt, Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.col.Find(ctx, bson.M{document.FieldClientEmail: email}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	var docs []document.Invoice
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	invoices := make([]*invoice.Invoice, len(docs))
	for i := range docs {
		invoices[i] = docs[i].ToDomain()
	}
	return invoices, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	inv.Version = 1
	if _, err := r.col.InsertOne(ctx, document.FromInvoice(inv)); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	filter := bson.M{document.FieldID: inv.ID, document.FieldVersion: inv.Version}
	update := bson.M{
		"$set": bson.M(document.Settlement(inv)),
		"$inc": bson.M{document.FieldVersion: 1},
	}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.ID, err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, inv.ID); err != nil {
			return err
		}
		return paymentpkg.ErrInvoiceVersionConflict
	}

	inv.Version++
	return nil
}
