// Package server exposes the service over HTTP: the vowel reference API,
// monitoring endpoints, Prometheus metrics and the WebSocket streaming channel
// that feeds audio chunks into stream sessions.
package server
