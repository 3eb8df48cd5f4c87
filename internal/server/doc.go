// Package server exposes the mixing engine over the network: a UDP server for
// TLV register/unregister packets with acks, and an HTTP API for health,
// source management, statistics, Prometheus metrics and a WebSocket event feed.
package server
