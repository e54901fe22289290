// Package wsconn wraps a gorilla websocket with the plumbing both legs of a
// call session share: one reader goroutine delivering text frames in order,
// one writer goroutine draining a bounded FIFO outbox under write deadlines,
// keepalive pings, and an idempotent close that flushes queued frames first.
package wsconn
