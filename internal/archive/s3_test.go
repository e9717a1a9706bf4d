package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/coaching-payments/internal/archive"
	"github.com/frahmantamala/coaching-payments/internal/core/events"
)

type fakeS3 struct {
	s3iface.S3API
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

var _ = Describe("S3Archive", func() {
	var (
		client *fakeS3
		store  *archive.S3Archive
		event  *events.PaymentConfirmedEvent
	)

	BeforeEach(func() {
		client = &fakeS3{}
		store = archive.NewS3Archive(client, "receipts-bucket", "receipts")
		event = events.NewPaymentConfirmedEvent("cs_1", "pp_1", "INV-1", "jane@example.com", "ch_1", 12500, 10000, 2500, nil)
		event.Timestamp = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	})

	It("should store the event as JSON under a dated key", func() {
		Expect(store.HandlePaymentConfirmed(context.Background(), event)).To(Succeed())

		Expect(client.inputs).To(HaveLen(1))
		in := client.inputs[0]
		Expect(aws.StringValue(in.Bucket)).To(Equal("receipts-bucket"))
		Expect(aws.StringValue(in.Key)).To(Equal("receipts/2024/03/cs_1.json"))
		Expect(aws.StringValue(in.ContentType)).To(Equal("application/json"))
		Expect(aws.StringValue(in.Metadata["invoice-number"])).To(Equal("INV-1"))

		var decoded map[string]any
		Expect(json.Unmarshal(client.bodies[0], &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("total_cents", BeNumerically("==", 12500)))
	})

	It("should wrap upload failures", func() {
		client.err = errors.New("access denied")

		err := store.HandlePaymentConfirmed(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("access denied")))
	})
})
