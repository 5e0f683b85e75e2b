package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/angeloszaimis/library-gateway/internal/model"
)

const reservationsPath = "/api/v1/reservations"

type ReservationClient struct {
	*service
}

func NewReservationClient(opts Options) *ReservationClient {
	return &ReservationClient{service: newService(opts)}
}

// List returns the caller's reservations.
func (c *ReservationClient) List(ctx context.Context, id model.Identity) ([]model.Reservation, error) {
	var result []model.Reservation
	err := c.call(ctx, Request{
		Method:  http.MethodGet,
		Path:    reservationsPath,
		Headers: identityHeaders(id),
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ReservationClient) Create(ctx context.Context, id model.Identity, req model.TakeBookRequest) (*model.Reservation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var result model.Reservation
	err = c.call(ctx, Request{
		Method:  http.MethodPost,
		Path:    reservationsPath,
		Headers: identityHeaders(id),
		Body:    body,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Rollback deletes a reservation whose book could not be taken. It is
// queued when the reservation service is down.
func (c *ReservationClient) Rollback(ctx context.Context, id model.Identity, reservationUID string) error {
	return c.callOrQueue(ctx, Request{
		Method:  http.MethodDelete,
		Path:    reservationsPath + "/" + url.PathEscape(reservationUID) + "/rollback",
		Headers: identityHeaders(id),
	})
}

// Return closes the reservation as of date. The service marks it EXPIRED
// when date is past its till date.
func (c *ReservationClient) Return(ctx context.Context, id model.Identity, reservationUID, date string) (*model.Reservation, error) {
	body, err := json.Marshal(date)
	if err != nil {
		return nil, err
	}

	var result model.Reservation
	err = c.call(ctx, Request{
		Method:  http.MethodPatch,
		Path:    reservationsPath + "/" + url.PathEscape(reservationUID) + "/return",
		Headers: identityHeaders(id),
		Body:    body,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
