// Package server composes and runs the billing process boundary.
//
// It opens the Postgres store, builds the application layer, and hosts
// the REST API next to a gRPC health endpoint that the dev supervisor
// gates on.
package server
