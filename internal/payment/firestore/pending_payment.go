package firestore

import (
	"context"
	"fmt"

	fs "cloud.google.com/go/firestore"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/datamodel/pendingpayment"
	paymentpkg "github.com/frahmantamala/coaching-payments/internal/payment"
	"github.com/frahmantamala/coaching-payments/internal/payment/document"
)

type PendingPaymentRepository struct {
	client     *fs.Client
	collection string
}

func NewPendingPaymentRepository(client *fs.Client, collection string) paymentpkg.PendingPaymentRepository {
	return &PendingPaymentRepository{client: client, collection: collection}
}

func (r *PendingPaymentRepository) doc(id string) *fs.DocumentRef {
	return r.client.Collection(r.collection).Doc(id)
}

func decodePendingPayment(snap *fs.DocumentSnapshot) (*pendingpayment.PendingPayment, error) {
	var d document.PendingPayment
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode pending payment %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return d.ToDomain(), nil
}

func (r *PendingPaymentRepository) GetByID(ctx context.Context, id string) (*pendingpayment.PendingPayment, error) {
	snap, err := r.doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, apperrors.ErrPendingPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending payment %s: %w", id, err)
	}
	return decodePendingPayment(snap)
}

func (r *PendingPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*pendingpayment.PendingPayment, error) {
	snap, err := first(ctx, r.client.Collection(r.collection).Where(pendingpayment.FieldGatewaySessionID, "==", sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payment by session: %w", err)
	}
	if snap == nil {
		return nil, apperrors.ErrPendingPaymentNotFound
	}
	return decodePendingPayment(snap)
}

// standaloneID keys a record created already completed by its session, so
// two confirmations of one session collide on the same document.
func standaloneID(sessionID string) string {
	return "session-" + sessionID
}

func (r *PendingPaymentRepository) Create(ctx context.Context, p *pendingpayment.PendingPayment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Status == pendingpayment.StatusCompleted && p.GatewaySessionID != nil && *p.GatewaySessionID != "" {
		p.ID = standaloneID(*p.GatewaySessionID)
	}
	_, err := r.doc(p.ID).Create(ctx, document.FromPendingPayment(p))
	if isAlreadyExists(err) {
		return paymentpkg.ErrPaymentAlreadyCompleted
	}
	if err != nil {
		return fmt.Errorf("failed to create pending payment: %w", err)
	}
	return nil
}

// Complete reads and writes inside one transaction, so two confirmations of
// the same record cannot both complete it.
func (r *PendingPaymentRepository) Complete(ctx context.Context, id string, c pendingpayment.Completion) error {
	ref := r.doc(id)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return apperrors.ErrPendingPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read pending payment %s: %w", id, err)
		}

		current, err := snap.DataAt(pendingpayment.FieldStatus)
		if err != nil {
			return fmt.Errorf("failed to read pending payment status: %w", err)
		}
		if current == string(pendingpayment.StatusCompleted) {
			return paymentpkg.ErrPaymentAlreadyCompleted
		}

		payload := c.Payload()
		updates := make([]fs.Update, 0, len(payload)+1)
		for path, value := range payload {
			updates = append(updates, fs.Update{Path: path, Value: value})
		}
		updates = append(updates, fs.Update{Path: pendingpayment.FieldVersion, Value: fs.Increment(1)})

		return tx.Update(ref, updates)
	})
}
