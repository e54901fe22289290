// Package server exposes the bridge over HTTP. Media streams arrive as
// websocket upgrades on the stream routes and are authenticated with a shared
// token before a session is started; the remaining routes serve health,
// session and configuration information and Prometheus metrics.
package server
