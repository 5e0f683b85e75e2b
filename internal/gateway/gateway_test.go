package gateway_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/gateway"
	"github.com/angeloszaimis/library-gateway/internal/model"
)

var _ = Describe("Gateway", func() {
	var (
		library      *fakeLibrary
		reservations *fakeReservations
		rating       *fakeRating
		gw           *gateway.Gateway
		ctx          context.Context
		id           model.Identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		id = model.Identity{Username: "Test Max", Token: "token"}
		library = &fakeLibrary{}
		reservations = &fakeReservations{}
		rating = &fakeRating{stars: 75}
		gw = gateway.New(library, reservations, rating, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	Describe("TakeBook", func() {
		var req model.TakeBookRequest

		BeforeEach(func() {
			req = model.TakeBookRequest{
				BookUID:    "f7cdc58f-2caf-4b15-9727-f89dcc629b27",
				LibraryUID: "83575e12-7ce0-48ee-9931-51919ff3c9ee",
				TillDate:   "2024-01-10",
			}
		})

		It("should reserve the book and report the rating", func() {
			resp, err := gw.TakeBook(ctx, id, req)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.ReservationUID).To(Equal("new-reservation"))
			Expect(resp.Status).To(Equal(model.StatusRented))
			Expect(resp.TillDate).To(Equal("2024-01-10"))
			Expect(resp.Book.BookUID).To(Equal(req.BookUID))
			Expect(resp.Library.LibraryUID).To(Equal(req.LibraryUID))
			Expect(resp.Rating.Stars).To(Equal(75))

			Expect(reservations.created).To(ConsistOf(req))
			Expect(library.taken).To(ConsistOf(req.LibraryUID + "/" + req.BookUID))
			Expect(reservations.rolledBack).To(BeEmpty())
		})

		Context("admission control", func() {
			It("should deny a sixth book at fifty stars", func() {
				rating.stars = 50
				reservations.list = rentedReservations(5)

				resp, err := gw.TakeBook(ctx, id, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp).To(BeNil())
				Expect(reservations.created).To(BeEmpty())
				Expect(library.taken).To(BeEmpty())
			})

			It("should admit a fifth book at fifty stars", func() {
				rating.stars = 50
				reservations.list = rentedReservations(4)

				resp, err := gw.TakeBook(ctx, id, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp).NotTo(BeNil())
			})

			It("should allow ten books at a full rating", func() {
				rating.stars = 100
				reservations.list = rentedReservations(9)

				resp, err := gw.TakeBook(ctx, id, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp).NotTo(BeNil())

				reservations.list = rentedReservations(10)
				resp, err = gw.TakeBook(ctx, id, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp).To(BeNil())
			})

			It("should only count books still rented", func() {
				rating.stars = 10
				reservations.list = []model.Reservation{
					{Status: model.StatusReturned},
					{Status: model.StatusExpired},
				}

				resp, err := gw.TakeBook(ctx, id, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp).NotTo(BeNil())
			})
		})

		It("should fail without side effects when the rating is unavailable", func() {
			rating.getErr = apperror.Unavailable("rating", nil)

			_, err := gw.TakeBook(ctx, id, req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindUnavailable))
			Expect(reservations.created).To(BeEmpty())
		})

		It("should propagate a failed reservation", func() {
			reservations.createErr = apperror.Rejected("reservation", http.StatusBadRequest, "bad till date")

			_, err := gw.TakeBook(ctx, id, req)
			Expect(apperror.StatusCode(err)).To(Equal(http.StatusBadRequest))
			Expect(library.taken).To(BeEmpty())
		})

		It("should roll back the reservation when the library is unavailable", func() {
			library.takeErr = apperror.Unavailable("library", errors.New("circuit breaker is open"))

			resp, err := gw.TakeBook(ctx, id, req)
			Expect(resp).To(BeNil())
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindUnavailable))
			Expect(reservations.rolledBack).To(Equal([]string{"new-reservation"}))
		})

		It("should roll back on a live context after the caller hangs up", func() {
			callerCtx, cancel := context.WithCancel(ctx)
			library.onTake = cancel
			library.takeErr = apperror.Unavailable("library", errors.New("request queued"))

			_, err := gw.TakeBook(callerCtx, id, req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindUnavailable))
			Expect(reservations.rolledBack).To(Equal([]string{"new-reservation"}))
			Expect(reservations.rollbackCtx).To(ConsistOf(BeNil()))
		})

		It("should roll back when the library call is cancelled", func() {
			callerCtx, cancel := context.WithCancel(ctx)
			library.onTake = cancel
			library.takeErr = context.Canceled

			_, err := gw.TakeBook(callerCtx, id, req)
			Expect(err).To(MatchError(context.Canceled))
			Expect(reservations.rolledBack).To(Equal([]string{"new-reservation"}))
			Expect(reservations.rollbackCtx).To(ConsistOf(BeNil()))
		})

		It("should keep the reservation when the library rejects the take", func() {
			library.takeErr = apperror.Rejected("library", http.StatusConflict, "no copies left")

			_, err := gw.TakeBook(ctx, id, req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindRejected))
			Expect(reservations.rolledBack).To(BeEmpty())
		})

		It("should report a batch lookup that does not match", func() {
			library.books = func([]string) ([]model.Book, error) { return nil, nil }

			_, err := gw.TakeBook(ctx, id, req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindMalformed))
		})
	})

	Describe("ReturnBook", func() {
		var req model.ReturnBookRequest

		BeforeEach(func() {
			req = model.ReturnBookRequest{Condition: model.ConditionExcellent, Date: "2024-01-05"}
			reservations.returned = &model.Reservation{
				ReservationUID: "r1",
				BookUID:        "b1",
				LibraryUID:     "l1",
				Status:         model.StatusReturned,
			}
			library.update = model.ConditionUpdate{OldCondition: model.ConditionExcellent, NewCondition: model.ConditionExcellent}
		})

		It("should pass the reservation and date through", func() {
			Expect(gw.ReturnBook(ctx, id, "r1", req)).To(Succeed())
			Expect(reservations.returnArgs).To(Equal([]string{"r1", "2024-01-05"}))
			Expect(library.returned).To(Equal([]model.BookCondition{model.ConditionExcellent}))
		})

		It("should increase the rating once for a timely return in the same condition", func() {
			Expect(gw.ReturnBook(ctx, id, "r1", req)).To(Succeed())
			Expect(rating.increases).To(Equal(1))
			Expect(rating.decreases).To(BeZero())
		})

		It("should decrease once for a worse condition", func() {
			library.update.NewCondition = model.ConditionBad

			Expect(gw.ReturnBook(ctx, id, "r1", req)).To(Succeed())
			Expect(rating.increases).To(BeZero())
			Expect(rating.decreases).To(Equal(1))
		})

		It("should decrease once for a late return", func() {
			reservations.returned.Status = model.StatusExpired

			Expect(gw.ReturnBook(ctx, id, "r1", req)).To(Succeed())
			Expect(rating.increases).To(BeZero())
			Expect(rating.decreases).To(Equal(1))
		})

		It("should decrease twice for a late return in worse condition", func() {
			reservations.returned.Status = model.StatusExpired
			library.update.NewCondition = model.ConditionGood

			Expect(gw.ReturnBook(ctx, id, "r1", req)).To(Succeed())
			Expect(rating.increases).To(BeZero())
			Expect(rating.decreases).To(Equal(2))
		})

		It("should adjust the rating on a live context after the caller hangs up", func() {
			callerCtx, cancel := context.WithCancel(ctx)
			library.onReturn = cancel
			reservations.returned.Status = model.StatusExpired
			library.update.NewCondition = model.ConditionBad

			Expect(gw.ReturnBook(callerCtx, id, "r1", req)).To(Succeed())
			Expect(rating.decreases).To(Equal(2))
			Expect(rating.ctxErrs).To(ConsistOf(BeNil(), BeNil()))
		})

		It("should report an unknown reservation as not found", func() {
			reservations.returned = nil
			reservations.returnErr = apperror.FromStatus("reservation", http.StatusNotFound, "")

			err := gw.ReturnBook(ctx, id, "r1", req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindNotFound))
			Expect(err.Error()).To(ContainSubstring("reservation not found"))
			Expect(library.returned).To(BeEmpty())
		})

		It("should treat a missing reservation as not found", func() {
			reservations.returned = nil

			err := gw.ReturnBook(ctx, id, "r1", req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindNotFound))
		})

		It("should not touch the rating when the library fails", func() {
			library.returnErr = apperror.Unavailable("library", nil)

			err := gw.ReturnBook(ctx, id, "r1", req)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindUnavailable))
			Expect(rating.increases + rating.decreases).To(BeZero())
		})
	})

	Describe("ListReservations", func() {
		It("should pair each reservation with the lookups at the same position", func() {
			reservations.list = []model.Reservation{
				{ReservationUID: "r1", BookUID: "b1", LibraryUID: "l1", Status: model.StatusRented},
				{ReservationUID: "r2", BookUID: "b2", LibraryUID: "l2", Status: model.StatusReturned},
				{ReservationUID: "r3", BookUID: "b3", LibraryUID: "l3", Status: model.StatusExpired},
			}

			result, err := gw.ListReservations(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(3))
			for i, r := range result {
				Expect(r.ReservationUID).To(Equal(reservations.list[i].ReservationUID))
				Expect(r.Status).To(Equal(reservations.list[i].Status))
				Expect(r.Book.BookUID).To(Equal(reservations.list[i].BookUID))
				Expect(r.Library.LibraryUID).To(Equal(reservations.list[i].LibraryUID))
			}
		})

		It("should skip the lookups for an empty list", func() {
			result, err := gw.ListReservations(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).NotTo(BeNil())
			Expect(result).To(BeEmpty())
			Expect(library.batchCalls).To(BeZero())
		})

		It("should report mismatched lookup lengths as malformed", func() {
			reservations.list = []model.Reservation{
				{ReservationUID: "r1", BookUID: "b1", LibraryUID: "l1"},
				{ReservationUID: "r2", BookUID: "b2", LibraryUID: "l2"},
			}
			library.libraries = func([]string) ([]model.Library, error) {
				return []model.Library{{LibraryUID: "l1"}}, nil
			}

			_, err := gw.ListReservations(ctx, id)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindMalformed))
		})

		It("should propagate a failed lookup", func() {
			reservations.list = []model.Reservation{{ReservationUID: "r1", BookUID: "b1", LibraryUID: "l1"}}
			library.books = func([]string) ([]model.Book, error) {
				return nil, apperror.Unavailable("library", nil)
			}

			_, err := gw.ListReservations(ctx, id)
			Expect(apperror.KindOf(err)).To(Equal(apperror.KindUnavailable))
		})
	})

	Describe("passthroughs", func() {
		It("should list libraries", func() {
			page, err := gw.ListLibraries(ctx, id, "Москва", 2, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Page).To(Equal(2))
			Expect(page.Items[0].City).To(Equal("Москва"))
		})

		It("should list library books", func() {
			page, err := gw.ListLibraryBooks(ctx, id, "l1", 1, 10, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.PageSize).To(Equal(10))
		})

		It("should get the rating", func() {
			r, err := gw.GetRating(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Stars).To(Equal(75))
		})
	})
})
