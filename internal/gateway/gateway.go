package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/model"
)

type LibraryService interface {
	ListLibraries(ctx context.Context, id model.Identity, city string, page, size int) (*model.LibraryPage, error)
	ListLibraryBooks(ctx context.Context, id model.Identity, libraryUID string, page, size int, showAll bool) (*model.LibraryBookPage, error)
	LibrariesByIDs(ctx context.Context, id model.Identity, ids []string) ([]model.Library, error)
	BooksByIDs(ctx context.Context, id model.Identity, ids []string) ([]model.Book, error)
	TakeBook(ctx context.Context, id model.Identity, libraryUID, bookUID string) error
	ReturnBook(ctx context.Context, id model.Identity, libraryUID, bookUID string, condition model.BookCondition) (*model.ConditionUpdate, error)
}

type ReservationService interface {
	List(ctx context.Context, id model.Identity) ([]model.Reservation, error)
	Create(ctx context.Context, id model.Identity, req model.TakeBookRequest) (*model.Reservation, error)
	Rollback(ctx context.Context, id model.Identity, reservationUID string) error
	Return(ctx context.Context, id model.Identity, reservationUID, date string) (*model.Reservation, error)
}

type RatingService interface {
	Get(ctx context.Context, id model.Identity) (*model.UserRating, error)
	Increase(ctx context.Context, id model.Identity) error
	Decrease(ctx context.Context, id model.Identity) error
}

type Gateway struct {
	library      LibraryService
	reservations ReservationService
	rating       RatingService
	logger       *slog.Logger
}

func New(library LibraryService, reservations ReservationService, rating RatingService, logger *slog.Logger) *Gateway {
	return &Gateway{
		library:      library,
		reservations: reservations,
		rating:       rating,
		logger:       logger,
	}
}

// TakeBook reserves a book for the caller. It returns a nil response and
// no error when one more book would exceed what the rating allows. If the
// library cannot be reached after the reservation was created, the
// reservation is rolled back and the outage is returned.
func (g *Gateway) TakeBook(ctx context.Context, id model.Identity, req model.TakeBookRequest) (*model.TakeBookResponse, error) {
	var (
		current []model.Reservation
		rating  *model.UserRating
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		current, err = g.reservations.List(egCtx, id)
		return err
	})
	eg.Go(func() error {
		var err error
		rating, err = g.rating.Get(egCtx, id)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	rented := countRented(current)
	if rented+1 > rating.MaxRented() {
		g.logger.Info("Rental limit reached",
			slog.String("username", id.Username),
			slog.Int("rented", rented),
			slog.Int("stars", rating.Stars))
		return nil, nil
	}

	reservation, err := g.reservations.Create(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if err := g.library.TakeBook(ctx, id, req.LibraryUID, req.BookUID); err != nil {
		if apperror.Is(err, apperror.KindUnavailable) || errors.Is(err, context.Canceled) {
			g.rollback(ctx, id, reservation.ReservationUID, err)
		}
		return nil, err
	}

	library, book, err := g.lookup(ctx, id, req.LibraryUID, req.BookUID)
	if err != nil {
		return nil, err
	}

	return &model.TakeBookResponse{
		ReservationUID: reservation.ReservationUID,
		Status:         reservation.Status,
		StartDate:      reservation.StartDate,
		TillDate:       reservation.TillDate,
		Book:           book,
		Library:        library,
		Rating:         *rating,
	}, nil
}

// rollback outlives the inbound request: a client that hangs up must not
// leave the reservation behind.
func (g *Gateway) rollback(ctx context.Context, id model.Identity, reservationUID string, cause error) {
	g.logger.Warn("Rolling back reservation",
		slog.String("reservation_uid", reservationUID),
		slog.Any("cause", cause))

	if err := g.reservations.Rollback(context.WithoutCancel(ctx), id, reservationUID); err != nil {
		g.logger.Error("Reservation rollback failed",
			slog.String("reservation_uid", reservationUID),
			slog.Any("err", err))
	}
}

func (g *Gateway) lookup(ctx context.Context, id model.Identity, libraryUID, bookUID string) (model.Library, model.Book, error) {
	var (
		libraries []model.Library
		books     []model.Book
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		libraries, err = g.library.LibrariesByIDs(egCtx, id, []string{libraryUID})
		return err
	})
	eg.Go(func() error {
		var err error
		books, err = g.library.BooksByIDs(egCtx, id, []string{bookUID})
		return err
	})
	if err := eg.Wait(); err != nil {
		return model.Library{}, model.Book{}, err
	}

	if len(libraries) != 1 || len(books) != 1 {
		return model.Library{}, model.Book{}, apperror.Malformed("library",
			fmt.Errorf("expected one library and one book, got %d and %d", len(libraries), len(books)))
	}

	return libraries[0], books[0], nil
}

// ReturnBook closes the reservation and adjusts the caller's rating: one
// step up for a timely return in unchanged condition, otherwise one step
// down for a worse condition and one for lateness.
func (g *Gateway) ReturnBook(ctx context.Context, id model.Identity, reservationUID string, req model.ReturnBookRequest) error {
	reservation, err := g.reservations.Return(ctx, id, reservationUID, req.Date)
	if apperror.Is(err, apperror.KindNotFound) || (err == nil && reservation == nil) {
		return apperror.NotFound("reservation not found")
	}
	if err != nil {
		return err
	}

	update, err := g.library.ReturnBook(ctx, id, reservation.LibraryUID, reservation.BookUID, req.Condition)
	if err != nil {
		return err
	}

	// The book is already back in the library; the rating follows even if
	// the client hangs up.
	ctx = context.WithoutCancel(ctx)
	expired := reservation.Status == model.StatusExpired
	if !update.Changed() && !expired {
		return g.rating.Increase(ctx, id)
	}

	if update.Changed() {
		if err := g.rating.Decrease(ctx, id); err != nil {
			return err
		}
	}

	if expired {
		return g.rating.Decrease(ctx, id)
	}

	return nil
}

// ListReservations joins the caller's reservations with their books and
// libraries. The batch lookups answer in request order.
func (g *Gateway) ListReservations(ctx context.Context, id model.Identity) ([]model.BookReservation, error) {
	raw, err := g.reservations.List(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		return []model.BookReservation{}, nil
	}

	bookIDs := make([]string, len(raw))
	libraryIDs := make([]string, len(raw))
	for i, r := range raw {
		bookIDs[i] = r.BookUID
		libraryIDs[i] = r.LibraryUID
	}

	var (
		books     []model.Book
		libraries []model.Library
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		books, err = g.library.BooksByIDs(egCtx, id, bookIDs)
		return err
	})
	eg.Go(func() error {
		var err error
		libraries, err = g.library.LibrariesByIDs(egCtx, id, libraryIDs)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(books) != len(raw) || len(libraries) != len(raw) {
		return nil, apperror.Malformed("library",
			fmt.Errorf("batch lookup returned %d books and %d libraries for %d reservations",
				len(books), len(libraries), len(raw)))
	}

	result := make([]model.BookReservation, len(raw))
	for i, r := range raw {
		result[i] = model.BookReservation{
			ReservationUID: r.ReservationUID,
			Status:         r.Status,
			StartDate:      r.StartDate,
			TillDate:       r.TillDate,
			Book:           books[i],
			Library:        libraries[i],
		}
	}

	return result, nil
}

func (g *Gateway) ListLibraries(ctx context.Context, id model.Identity, city string, page, size int) (*model.LibraryPage, error) {
	return g.library.ListLibraries(ctx, id, city, page, size)
}

func (g *Gateway) ListLibraryBooks(ctx context.Context, id model.Identity, libraryUID string, page, size int, showAll bool) (*model.LibraryBookPage, error) {
	return g.library.ListLibraryBooks(ctx, id, libraryUID, page, size, showAll)
}

func (g *Gateway) GetRating(ctx context.Context, id model.Identity) (*model.UserRating, error) {
	return g.rating.Get(ctx, id)
}

func countRented(reservations []model.Reservation) int {
	n := 0
	for _, r := range reservations {
		if r.Status == model.StatusRented {
			n++
		}
	}
	return n
}
