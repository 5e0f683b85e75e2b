package client

import (
	"context"
	"net/http"

	"github.com/angeloszaimis/library-gateway/internal/model"
)

const ratingPath = "/api/v1/rating"

type RatingClient struct {
	*service
}

func NewRatingClient(opts Options) *RatingClient {
	return &RatingClient{service: newService(opts)}
}

func (c *RatingClient) Get(ctx context.Context, id model.Identity) (*model.UserRating, error) {
	var result model.UserRating
	err := c.call(ctx, Request{
		Method:  http.MethodGet,
		Path:    ratingPath,
		Headers: identityHeaders(id),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Increase and Decrease are queued when the rating service is down: the
// return they follow has already been recorded.
func (c *RatingClient) Increase(ctx context.Context, id model.Identity) error {
	return c.callOrQueue(ctx, Request{
		Method:  http.MethodPatch,
		Path:    ratingPath + "/increase",
		Headers: identityHeaders(id),
	})
}

func (c *RatingClient) Decrease(ctx context.Context, id model.Identity) error {
	return c.callOrQueue(ctx, Request{
		Method:  http.MethodPatch,
		Path:    ratingPath + "/decrease",
		Headers: identityHeaders(id),
	})
}
