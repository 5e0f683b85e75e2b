package main

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/angeloszaimis/library-gateway/internal/auth"
	"github.com/angeloszaimis/library-gateway/internal/handler"
	"github.com/angeloszaimis/library-gateway/internal/metrics"
)

func setupRouter(
	log *slog.Logger,
	events metrics.Emitter,
	authMiddleware *auth.Middleware,
	gatewayHandler *handler.GatewayHandler,
	manageHandler *handler.ManageHandler,
	prometheus http.Handler,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(handler.RequestLogger(log, events))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware.Handler)
	gatewayHandler.Register(api)

	manageHandler.Register(r.PathPrefix("/manage").Subrouter())
	r.Handle("/metrics", prometheus).Methods(http.MethodGet)

	return r
}
