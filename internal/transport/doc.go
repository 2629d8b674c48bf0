// Package transport talks to the sync backend.
//
// The backend is a typed-collection REST service (PocketBase-shaped): each
// collection is served under /api/collections/<name>/records. Every call
// first picks a reachable endpoint from an ordered candidate list, then goes
// through a retrying, rate-limited HTTP client.
//
// Errors are classified into the domain taxonomy so callers can tell an
// unreachable backend (ErrNoEndpointReachable, ErrNetworkUnavailable) apart
// from a backend that answered with a failure (ErrRecordNotFound,
// ErrUnauthorized, ErrRemote).
package transport
