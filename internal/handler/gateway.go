package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/auth"
	"github.com/angeloszaimis/library-gateway/internal/model"
)

const (
	defaultPage = 1
	defaultSize = 1
	maxBodySize = 1 << 20
)

// Orchestrator is the gateway workflow the routes delegate to.
type Orchestrator interface {
	TakeBook(ctx context.Context, id model.Identity, req model.TakeBookRequest) (*model.TakeBookResponse, error)
	ReturnBook(ctx context.Context, id model.Identity, reservationUID string, req model.ReturnBookRequest) error
	ListReservations(ctx context.Context, id model.Identity) ([]model.BookReservation, error)
	ListLibraries(ctx context.Context, id model.Identity, city string, page, size int) (*model.LibraryPage, error)
	ListLibraryBooks(ctx context.Context, id model.Identity, libraryUID string, page, size int, showAll bool) (*model.LibraryBookPage, error)
	GetRating(ctx context.Context, id model.Identity) (*model.UserRating, error)
}

type GatewayHandler struct {
	logger   *slog.Logger
	gateway  Orchestrator
	validate *validator.Validate
}

func NewGatewayHandler(logger *slog.Logger, gateway Orchestrator) *GatewayHandler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &GatewayHandler{
		logger:   logger,
		gateway:  gateway,
		validate: validate,
	}
}

// Register mounts the public routes on r, which is expected to sit under
// /api/v1 behind the auth middleware.
func (h *GatewayHandler) Register(r *mux.Router) {
	r.HandleFunc("/libraries", h.ListLibraries).Methods(http.MethodGet)
	r.HandleFunc("/libraries/{libraryUid}/books", h.ListLibraryBooks).Methods(http.MethodGet)
	r.HandleFunc("/reservations", h.ListReservations).Methods(http.MethodGet)
	r.HandleFunc("/reservations", h.TakeBook).Methods(http.MethodPost)
	r.HandleFunc("/reservations/{reservationUid}/return", h.ReturnBook).Methods(http.MethodPost)
	r.HandleFunc("/rating", h.GetRating).Methods(http.MethodGet)
}

type libraryQuery struct {
	City string `json:"city" validate:"required"`
	Page int    `json:"page" validate:"min=1"`
	Size int    `json:"size" validate:"min=1,max=100"`
}

type libraryBooksQuery struct {
	LibraryUID string `json:"libraryUid" validate:"required"`
	Page       int    `json:"page" validate:"min=1"`
	Size       int    `json:"size" validate:"min=1,max=100"`
	ShowAll    bool   `json:"showAll"`
}

func (h *GatewayHandler) ListLibraries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := libraryQuery{City: q.Get("city")}
	var err error
	if query.Page, err = intParam(q.Get("page"), "page", defaultPage); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if query.Size, err = intParam(q.Get("size"), "size", defaultSize); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !h.valid(w, query) {
		return
	}

	page, err := h.gateway.ListLibraries(r.Context(), id, query.City, query.Page, query.Size)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *GatewayHandler) ListLibraryBooks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := libraryBooksQuery{LibraryUID: mux.Vars(r)["libraryUid"]}
	var err error
	if query.Page, err = intParam(q.Get("page"), "page", defaultPage); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if query.Size, err = intParam(q.Get("size"), "size", defaultSize); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if raw := q.Get("showAll"); raw != "" {
		if query.ShowAll, err = strconv.ParseBool(raw); err != nil {
			writeError(w, h.logger, apperror.Validation("invalid query parameter showAll", err))
			return
		}
	}
	if !h.valid(w, query) {
		return
	}

	page, err := h.gateway.ListLibraryBooks(r.Context(), id, query.LibraryUID, query.Page, query.Size, query.ShowAll)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *GatewayHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	reservations, err := h.gateway.ListReservations(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

// TakeBook answers 204 with no body when the rental limit is reached.
func (h *GatewayHandler) TakeBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req model.TakeBookRequest
	if !h.decode(w, r, &req) || !h.valid(w, req) {
		return
	}

	resp, err := h.gateway.TakeBook(r.Context(), id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *GatewayHandler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	reservationUID := mux.Vars(r)["reservationUid"]
	if err := h.validate.Var(reservationUID, "required,uuid"); err != nil {
		writeError(w, h.logger, apperror.Validation("invalid reservationUid", err))
		return
	}

	var req model.ReturnBookRequest
	if !h.decode(w, r, &req) || !h.valid(w, req) {
		return
	}

	if err := h.gateway.ReturnBook(r.Context(), id, reservationUID, req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GatewayHandler) GetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	rating, err := h.gateway.GetRating(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (h *GatewayHandler) identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("missing identity"))
	}
	return id, ok
}

func (h *GatewayHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := decoder.Decode(dst); err != nil {
		writeError(w, h.logger, apperror.Validation("invalid request body", err))
		return false
	}
	return true
}

func (h *GatewayHandler) valid(w http.ResponseWriter, v any) bool {
	if err := h.validate.Struct(v); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			writeError(w, h.logger, apperror.Validation("validation failed", err))
			return false
		}
		writeError(w, h.logger, err)
		return false
	}
	return true
}

func intParam(raw, name string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("invalid query parameter "+name, err)
	}
	return n, nil
}
