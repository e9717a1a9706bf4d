package firestore

import (
	"context"
	"fmt"

	fs "cloud.google.com/go/firestore"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/invoice"
	paymentpkg "github.com/frahmantamala/coaching-payments/internal/payment"
	"github.com/frahmantamala/coaching-payments/internal/payment/document"
)

// InvoiceRepository needs a composite index on (clientEmail, createdAt desc).
type InvoiceRepository struct {
	client     *fs.Client
	collection string
}

func NewInvoiceRepository(client *fs.Client, collection string) paymentpkg.InvoiceRepository {
	return &InvoiceRepository{client: client, collection: collection}
}

func (r *InvoiceRepository) doc(id string) *fs.DocumentRef {
	return r.client.Collection(r.collection).Doc(id)
}

func decodeInvoice(snap *fs.DocumentSnapshot) (*invoice.Invoice, error) {
	var d document.Invoice
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode invoice %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return d.ToDomain(), nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	snap, err := r.doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, apperrors.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	return decodeInvoice(snap)
}

func (r *InvoiceRepository) byEmail(email string) fs.Query {
	return r.client.Collection(r.collection).
		Where(document.FieldClientEmail, "==", email).
		OrderBy(document.FieldCreatedAt, fs.Desc)
}

func (r *InvoiceRepository) LatestByClientEmail(ctx context.Context, email string) (*invoice.Invoice, error) {
	snap, err := first(ctx, r.byEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices by client email: %w", err)
	}
	if snap == nil {
		return nil, apperrors.ErrInvoiceNotFound
	}
	return decodeInvoice(snap)
}

// GetBySessionID does not order, a session settles at most one invoice.
func (r *InvoiceRepository) GetBySessionID(ctx context.Context, sessionID string) (*invoice.Invoice, error) {
	snap, err := first(ctx, r.client.Collection(r.collection).Where(document.FieldGatewaySessionID, "==", sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice by session: %w", err)
	}
	if snap == nil {
		return nil, apperrors.ErrInvoiceNotFound
	}
	return decodeInvoice(snap)
}

func (r *InvoiceRepository) ListByClientEmail(ctx context.Context, email string, limit int) ([]*invoice.Invoice, error) {
	snaps, err := r.byEmail(email).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices by client email: %w", err)
	}

	invoices := make([]*invoice.Invoice, 0, len(snaps))
	for _, snap := range snaps {
		inv, err := decodeInvoice(snap)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	inv.Version = 1
	if _, err := r.doc(inv.ID).Create(ctx, document.FromInvoice(inv)); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	ref := r.doc(inv.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return apperrors.ErrInvoiceNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read invoice %s: %w", inv.ID, err)
		}

		stored, err := snap.DataAt(document.FieldVersion)
		if err != nil {
			return fmt.Errorf("failed to read invoice version: %w", err)
		}
		if version, _ := stored.(int64); version != inv.Version {
			return paymentpkg.ErrInvoiceVersionConflict
		}

		payload := document.Settlement(inv)
		updates := make([]fs.Update, 0, len(payload)+1)
		for path, value := range payload {
			updates = append(updates, fs.Update{Path: path, Value: value})
		}
		updates = append(updates, fs.Update{Path: document.FieldVersion, Value: inv.Version + 1})

		return tx.Update(ref, updates)
	})
	if err != nil {
		return err
	}

	inv.Version++
	return nil
}
