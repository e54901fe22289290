// Package realtime implements the upstream leg of a call session: a websocket
// client for the realtime speech model. Client holds the per-process
// credentials and dials one Session per call.
package realtime
