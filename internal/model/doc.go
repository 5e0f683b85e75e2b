// Package model holds the wire types shared by the dependency clients,
// the gateway orchestrator and the HTTP handlers. Dates travel as
// YYYY-MM-DD strings.
package model
