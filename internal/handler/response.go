package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/angeloszaimis/library-gateway/internal/apperror"
)

type errorResponse struct {
	Message string       `json:"message"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err with the status its kind maps to.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := errorStatus(err)

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", slog.Int("status", status), slog.Any("err", err))
	} else {
		logger.Debug("Request rejected", slog.Int("status", status), slog.Any("err", err))
	}

	writeJSON(w, status, body)
}

func errorStatus(err error) (int, errorResponse) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, errorResponse{Message: "internal error"}
	}

	switch appErr.Kind {
	case apperror.KindUnavailable:
		message := "service unavailable"
		if appErr.Dependency != "" {
			message = appErr.Dependency + " service unavailable"
		}
		return http.StatusServiceUnavailable, errorResponse{Message: message}

	case apperror.KindRejected:
		status := appErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, errorResponse{Message: messageOr(appErr.Message, http.StatusText(status))}

	case apperror.KindNotFound:
		return http.StatusNotFound, errorResponse{Message: messageOr(appErr.Message, "not found")}

	case apperror.KindValidation:
		return http.StatusBadRequest, errorResponse{
			Message: messageOr(appErr.Message, "validation failed"),
			Errors:  fieldErrors(appErr.Err),
		}

	case apperror.KindUnauthorized:
		return http.StatusUnauthorized, errorResponse{Message: messageOr(appErr.Message, "unauthorized")}

	default:
		return http.StatusInternalServerError, errorResponse{Message: "internal error"}
	}
}

func fieldErrors(err error) []fieldError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		if err == nil {
			return nil
		}
		return []fieldError{{Error: err.Error()}}
	}

	result := make([]fieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		result = append(result, fieldError{
			Field: fe.Field(),
			Error: describe(fe),
		})
	}
	return result
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "oneof":
		return "must be one of " + fe.Param()
	case "datetime":
		return "must be a date in format YYYY-MM-DD"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func messageOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
