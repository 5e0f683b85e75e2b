package redis_test

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/library-gateway/pkg/redis"
)

var _ = Describe("Client", func() {
	var server *miniredis.Miniredis

	BeforeEach(func() {
		server = miniredis.RunT(GinkgoT())
	})

	It("should connect to a running server", func() {
		client, err := redis.Connect(context.Background(), redis.Options{Address: server.Addr()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)

		Expect(client.Raw().Set(context.Background(), "k", "v", 0).Err()).To(Succeed())
		Expect(server.Get("k")).To(Equal("v"))
	})

	It("should fail when the server is down", func() {
		addr := server.Addr()
		server.Close()

		_, err := redis.Connect(context.Background(), redis.Options{Address: addr})
		Expect(err).To(MatchError(ContainSubstring(addr)))
	})

	It("should select the configured database", func() {
		client := redis.NewClient(redis.Options{Address: server.Addr(), DB: 2})
		DeferCleanup(client.Close)

		Expect(client.Raw().Set(context.Background(), "k", "v", 0).Err()).To(Succeed())
		server.Select(2)
		Expect(server.Get("k")).To(Equal("v"))
	})
})
