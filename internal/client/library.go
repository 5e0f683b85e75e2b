package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/angeloszaimis/library-gateway/internal/model"
)

type LibraryClient struct {
	*service
}

func NewLibraryClient(opts Options) *LibraryClient {
	return &LibraryClient{service: newService(opts)}
}

func (c *LibraryClient) ListLibraries(ctx context.Context, id model.Identity, city string, page, size int) (*model.LibraryPage, error) {
	var result model.LibraryPage
	err := c.call(ctx, Request{
		Method:  http.MethodGet,
		Path:    "/api/v1/libraries",
		Query:   url.Values{"city": {city}, "page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}},
		Headers: identityHeaders(id),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *LibraryClient) ListLibraryBooks(ctx context.Context, id model.Identity, libraryUID string, page, size int, showAll bool) (*model.LibraryBookPage, error) {
	var result model.LibraryBookPage
	err := c.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/v1/libraries/" + url.PathEscape(libraryUID) + "/books",
		Query: url.Values{
			"page":    {strconv.Itoa(page)},
			"size":    {strconv.Itoa(size)},
			"showAll": {strconv.FormatBool(showAll)},
		},
		Headers: identityHeaders(id),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// LibrariesByIDs returns one library per id, in the order of ids.
func (c *LibraryClient) LibrariesByIDs(ctx context.Context, id model.Identity, ids []string) ([]model.Library, error) {
	body, err := json.Marshal(batchRequest{IDs: ids})
	if err != nil {
		return nil, err
	}

	var result []model.Library
	err = c.call(ctx, Request{
		Method:  http.MethodPost,
		Path:    "/api/v1/libraries/batch",
		Headers: identityHeaders(id),
		Body:    body,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BooksByIDs returns one book per id, in the order of ids.
func (c *LibraryClient) BooksByIDs(ctx context.Context, id model.Identity, ids []string) ([]model.Book, error) {
	body, err := json.Marshal(batchRequest{IDs: ids})
	if err != nil {
		return nil, err
	}

	var result []model.Book
	err = c.call(ctx, Request{
		Method:  http.MethodPost,
		Path:    "/api/v1/books/batch",
		Headers: identityHeaders(id),
		Body:    body,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TakeBook decrements the available count of the book in the library.
// It is never queued: a failure here drives the reservation rollback.
func (c *LibraryClient) TakeBook(ctx context.Context, id model.Identity, libraryUID, bookUID string) error {
	return c.call(ctx, Request{
		Method:  http.MethodPatch,
		Path:    bookPath(libraryUID, bookUID) + "/take",
		Headers: identityHeaders(id),
	}, nil)
}

func (c *LibraryClient) ReturnBook(ctx context.Context, id model.Identity, libraryUID, bookUID string, condition model.BookCondition) (*model.ConditionUpdate, error) {
	body, err := json.Marshal(returnBookRequest{Condition: condition})
	if err != nil {
		return nil, err
	}

	var result model.ConditionUpdate
	err = c.call(ctx, Request{
		Method:  http.MethodPatch,
		Path:    bookPath(libraryUID, bookUID) + "/return",
		Headers: identityHeaders(id),
		Body:    body,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type returnBookRequest struct {
	Condition model.BookCondition `json:"condition"`
}

func bookPath(libraryUID, bookUID string) string {
	return "/api/v1/libraries/" + url.PathEscape(libraryUID) + "/books/" + url.PathEscape(bookUID)
}
