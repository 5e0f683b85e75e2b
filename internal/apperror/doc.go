// Package apperror defines the failure taxonomy shared by the dependency
// clients, the orchestrator and the HTTP layer. Failures are values carrying
// a Kind and, when a downstream answered, its status code. Callers match on
// the kind with KindOf rather than on concrete types.
package apperror
