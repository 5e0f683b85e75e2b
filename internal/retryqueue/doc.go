// Package retryqueue persists mutating dependency calls that could not be
// delivered and replays them in the background.
//
// Requests live in Redis lists under a per-instance prefix: pending holds
// the FIFO backlog, processing holds items claimed by the worker, and dead
// holds items that will never be replayed. A request leaves processing
// only after a successful replay (Ack), a failed one (Requeue to the tail)
// or when it is given up on (DeadLetter). Delivery is at least once.
package retryqueue
