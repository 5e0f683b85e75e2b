package auth_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/library-gateway/internal/auth"
	"github.com/angeloszaimis/library-gateway/internal/model"
)

const secret = "test-secret"

func sign(method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	Expect(err).NotTo(HaveOccurred())
	return token
}

var _ = Describe("Middleware", func() {
	var (
		middleware *auth.Middleware
		seen       *model.Identity
		handler    http.Handler
	)

	serve := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rating", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		seen = nil
		middleware = auth.NewMiddleware(secret, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
		handler = middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			Expect(ok).To(BeTrue())
			seen = &id
			w.WriteHeader(http.StatusOK)
		}))
	})

	It("should pass the identity of a valid token on", func() {
		token := sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"preferred_username": "Test Max",
			"exp":                time.Now().Add(time.Hour).Unix(),
		})

		rec := serve("Bearer " + token)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(seen).NotTo(BeNil())
		Expect(seen.Username).To(Equal("Test Max"))
		Expect(seen.Token).To(Equal(token))
	})

	It("should fall back to the subject", func() {
		token := sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "max"})

		Expect(serve("Bearer " + token).Code).To(Equal(http.StatusOK))
		Expect(seen.Username).To(Equal("max"))
	})

	It("should read a configured username claim", func() {
		middleware = auth.NewMiddleware(secret, "name", slog.New(slog.NewTextHandler(io.Discard, nil)))
		token := sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"name": "Test Max", "sub": "other"})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		id, err := middleware.Authenticate(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(id.Username).To(Equal("Test Max"))
	})

	DescribeTable("should reject requests without a usable token",
		func(authorization func() string) {
			rec := serve(authorization())
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(Equal("Bearer"))
			Expect(rec.Body.String()).To(ContainSubstring(`"message"`))
			Expect(seen).To(BeNil())
		},
		Entry("missing header", func() string { return "" }),
		Entry("wrong scheme", func() string { return "Basic dXNlcjpwYXNz" }),
		Entry("empty token", func() string { return "Bearer " }),
		Entry("garbage token", func() string { return "Bearer not-a-jwt" }),
		Entry("wrong secret", func() string {
			return "Bearer " + sign(jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "max"})
		}),
		Entry("expired token", func() string {
			return "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
				"sub": "max",
				"exp": time.Now().Add(-time.Minute).Unix(),
			})
		}),
		Entry("unexpected algorithm", func() string {
			return "Bearer " + sign(jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"sub": "max"})
		}),
		Entry("no username", func() string {
			return "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"scope": "openid"})
		}),
	)

	It("should report a missing token distinctly", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := middleware.Authenticate(req)
		Expect(err).To(MatchError(auth.ErrMissingToken))
	})
})
