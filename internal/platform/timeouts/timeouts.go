// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// GRPCRequest caps the time allowed for a single gRPC health probe
// from the dev host to a backend service.
const GRPCRequest = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// OutboxLease is how long a relay claim on an outbox row stays exclusive
// before another relay may pick the row up again.
const OutboxLease = 30 * time.Second

// PublishRequest caps a single broker publish round trip.
const PublishRequest = 5 * time.Second

// ConsumerFetch caps a single pull-consumer fetch waiting for new
// integration events.
const ConsumerFetch = 5 * time.Second

// ActorIdle is how long a ledger actor may sit without mail before the
// runtime deactivates it.
const ActorIdle = 2 * time.Minute

// ActorCall caps a synchronous call into an actor mailbox, covering both
// queueing and the turn itself.
const ActorCall = 10 * time.Second
