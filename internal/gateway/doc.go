// Package gateway composes the library, reservation and rating services
// into the operations the public API offers: taking a book with
// admission control and compensation, returning a book with the rating
// adjustment it earns, and listing reservations with their books and
// libraries.
package gateway
