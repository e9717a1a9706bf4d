// Package archive keeps a copy of every confirmed receipt in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/core/events"
)

// S3Archive writes one JSON object per confirmed session, keyed
// <prefix>/<yyyy>/<mm>/<sessionId>.json. Rewriting a session overwrites it.
type S3Archive struct {
	client s3iface.S3API
	bucket string
	prefix string
}

func NewS3Client(cfg internal.ArchiveConfig) (s3iface.S3API, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return s3.New(sess), nil
}

func NewS3Archive(client s3iface.S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

func (a *S3Archive) Name() string {
	return "receipt-archive"
}

func (a *S3Archive) Key(event *events.PaymentConfirmedEvent) string {
	at := event.OccurredAt().UTC()
	return path.Join(a.prefix, at.Format("2006"), at.Format("01"), event.SessionID+".json")
}

func (a *S3Archive) HandlePaymentConfirmed(ctx context.Context, event *events.PaymentConfirmedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.Key(event)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]*string{
			"invoice-number": aws.String(event.InvoiceNumber),
			"transaction-id": aws.String(event.TransactionID),
		},
	})
	if err != nil {
		return fmt.Errorf("unable to upload receipt to s3: %w", err)
	}
	return nil
}
