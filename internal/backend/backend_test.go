package backend_test

import (
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/library-gateway/internal/backend"
)

var _ = Describe("Backend", func() {
	var (
		testURL *url.URL
		b       *backend.Backend
	)

	BeforeEach(func() {
		var err error
		testURL, err = url.Parse("http://localhost:8060")
		Expect(err).NotTo(HaveOccurred())
		b = backend.New("library", testURL)
	})

	Describe("New", func() {
		It("should keep the dependency and URL", func() {
			Expect(b.Dependency()).To(Equal("library"))
			Expect(b.URL()).To(Equal(testURL))
		})

		It("should start healthy with no active connections", func() {
			Expect(b.IsHealthy()).To(BeTrue())
			Expect(b.ActiveConnections()).To(Equal(0))
		})
	})

	Describe("Endpoint", func() {
		It("should join the path onto the base URL", func() {
			Expect(b.Endpoint("/api/v1/libraries", nil)).To(Equal("http://localhost:8060/api/v1/libraries"))
		})

		It("should keep a base path prefix", func() {
			u, _ := url.Parse("http://library:8060/svc/")
			prefixed := backend.New("library", u)
			Expect(prefixed.Endpoint("/api/v1/books/batch", nil)).To(Equal("http://library:8060/svc/api/v1/books/batch"))
		})

		It("should encode the query", func() {
			query := url.Values{"city": {"Moscow"}, "page": {"1"}}
			Expect(b.Endpoint("api/v1/libraries", query)).To(Equal("http://localhost:8060/api/v1/libraries?city=Moscow&page=1"))
		})
	})

	Describe("Health Management", func() {
		It("should report a change only when the status flips", func() {
			Expect(b.SetHealthy(true)).To(BeFalse())
			Expect(b.SetHealthy(false)).To(BeTrue())
			Expect(b.IsHealthy()).To(BeFalse())
			Expect(b.SetHealthy(false)).To(BeFalse())
			Expect(b.SetHealthy(true)).To(BeTrue())
		})

		It("should be thread-safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					b.SetHealthy(i%2 == 0)
					_ = b.IsHealthy()
				}(i)
			}
			wg.Wait()
		})
	})

	Describe("Connection Tracking", func() {
		It("should count reserved connections", func() {
			b.IncrementConn()
			b.IncrementConn()
			Expect(b.ActiveConnections()).To(Equal(2))
			b.DecrementConn()
			Expect(b.ActiveConnections()).To(Equal(1))
		})

		It("should not go below zero", func() {
			b.DecrementConn()
			Expect(b.ActiveConnections()).To(Equal(0))
		})

		It("should handle concurrent increments and decrements", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.IncrementConn()
					b.DecrementConn()
				}()
			}
			wg.Wait()
			Expect(b.ActiveConnections()).To(Equal(0))
		})
	})

	Describe("Response Time Tracking", func() {
		It("should return zero before any response", func() {
			Expect(b.EWMATime()).To(BeZero())
		})

		It("should take the first response as is", func() {
			b.RecordResponse(100 * time.Millisecond)
			Expect(b.EWMATime()).To(Equal(100 * time.Millisecond))
		})

		It("should weight later responses by alpha", func() {
			b.RecordResponse(100 * time.Millisecond)
			b.RecordResponse(200 * time.Millisecond)
			Expect(b.EWMATime()).To(BeNumerically("~", 120*time.Millisecond, time.Microsecond))
		})
	})

	Describe("ParseAll", func() {
		It("should build one backend per URL", func() {
			backends, err := backend.ParseAll("rating", []string{"http://rating-1:8050", "http://rating-2:8050"})
			Expect(err).NotTo(HaveOccurred())
			Expect(backends).To(HaveLen(2))
			Expect(backends[1].URL().Host).To(Equal("rating-2:8050"))
			Expect(backends[0].Dependency()).To(Equal("rating"))
		})

		It("should fail on an unparsable URL", func() {
			_, err := backend.ParseAll("rating", []string{"http://[::1"})
			Expect(err).To(HaveOccurred())
		})
	})
})
