package middleware_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/transport/middleware"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("Authenticate and RequirePermissions", func() {
	var (
		key     *rsa.PrivateKey
		handler http.Handler
		subject string
	)

	sign := func(k *rsa.PrivateKey, permissions []string, expiresIn time.Duration) string {
		claims := middleware.OperatorClaims{
			Email:       "ops@coaching.example",
			Permissions: permissions,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "operator-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k)
		Expect(err).ToNot(HaveOccurred())
		return token
	}

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/invoices", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		Expect(err).ToNot(HaveOccurred())

		subject = ""
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject = internal.SubjectFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
		handler = middleware.Authenticate(&key.PublicKey, discardLogger)(
			middleware.RequirePermissions(discardLogger, middleware.PermissionReadPayments)(inner))
	})

	It("should let an operator with the permission through", func() {
		rec := do(sign(key, []string{middleware.PermissionReadPayments}, time.Hour))
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(subject).To(Equal("operator-1"))
	})

	It("should accept the admin permission for any route", func() {
		rec := do(sign(key, []string{middleware.PermissionAdmin}, time.Hour))
		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})

	It("should reject a missing token", func() {
		rec := do("")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeMissingToken)))
	})

	It("should reject an expired token", func() {
		rec := do(sign(key, []string{middleware.PermissionAdmin}, -time.Minute))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeTokenExpired)))
	})

	It("should reject a token signed by another key", func() {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		Expect(err).ToNot(HaveOccurred())

		rec := do(sign(other, []string{middleware.PermissionAdmin}, time.Hour))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeInvalidToken)))
	})

	It("should reject an HMAC token", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("secret"))
		Expect(err).ToNot(HaveOccurred())

		rec := do(token)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should forbid an operator without the permission", func() {
		rec := do(sign(key, []string{"payments:write"}, time.Hour))
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeForbidden)))
	})
})
