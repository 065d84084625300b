// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the Unix-socket CBOR protocol spoken by
// the Taskvault ledger service and its clients.
//
// The protocol is one request-response cycle per connection: the
// client writes a single CBOR map containing an "action" field plus
// action-specific parameters, the server routes on the action name and
// writes back a [Response] envelope, then the connection closes. CBOR
// is self-delimiting, so there is no framing layer.
//
// Authenticated actions carry the raw arbitration token bytes in a
// "token" field; handlers that require arbitration verify the token
// themselves. Everything else is authorized by the actor fields inside
// the request, which the settlement engine checks against task
// ownership.
//
// Key exports:
//
//   - [SocketServer] -- accepts connections, dispatches to [ActionFunc]
//   - [Client] -- dials, sends one request, decodes the response
//   - [Response] -- the {ok, error, data} wire envelope
package service
