// Package handler exposes the gateway over HTTP: the public /api/v1
// routes, the /manage endpoints and the request logging middleware.
// Failures are rendered as {"message": ...} with a status derived from
// the apperror kind.
package handler
