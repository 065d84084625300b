// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/taskvault/taskvault/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// service socket. This is separate from the server's read/write
// timeouts — it covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the server to
// send a response after writing the request. Matched to the server's
// readTimeout + writeTimeout to account for handler execution time.
const responseReadTimeout = 45 * time.Second

// maxResponseSize is the maximum size of a single CBOR response.
// Matches the server's maxRequestSize for symmetry.
const maxResponseSize = 1024 * 1024

// CallError is returned by Call when the server responds with
// ok=false. It carries the server's error message, the machine-
// readable code (when the server classified the error), and the
// action that failed.
type CallError struct {
	Action  string
	Code    string
	Message string
}

func (e *CallError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("service error on %q (%s): %s", e.Action, e.Code, e.Message)
	}
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Client sends CBOR requests to a Taskvault service socket. Each Call
// opens a new connection (matching the server's one-request-per-
// connection model), sends the request, reads the response, and
// closes the connection.
//
// If the client carries token bytes (via NewClientWithTokenFile or
// NewClientWithToken), they are included in every request as the
// "token" field. Clients without a token omit it; only dispute
// resolution requires one.
type Client struct {
	socketPath string
	tokenBytes []byte
}

// NewClient creates a client that sends requests without an
// arbitration token.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// NewClientWithTokenFile creates an arbitration client by reading the
// token from tokenPath. The token file is the raw bytes minted by the
// authority (CBOR payload + Ed25519 signature). Returns an error if
// the file cannot be read or is empty.
func NewClientWithTokenFile(socketPath, tokenPath string) (*Client, error) {
	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("reading arbitration token from %s: %w", tokenPath, err)
	}
	if len(tokenBytes) == 0 {
		return nil, fmt.Errorf("arbitration token file %s is empty", tokenPath)
	}
	return &Client{
		socketPath: socketPath,
		tokenBytes: tokenBytes,
	}, nil
}

// NewClientWithToken creates a client with pre-loaded token bytes.
// Useful in tests and for callers that manage the token lifecycle
// themselves (e.g., re-minting on expiry).
func NewClientWithToken(socketPath string, tokenBytes []byte) *Client {
	return &Client{
		socketPath: socketPath,
		tokenBytes: tokenBytes,
	}
}

// Call sends a CBOR request to the service and decodes the response.
//
// The fields parameter may contain any handler-specific request
// fields; the client adds "action" and "token" automatically. Pass
// nil for actions that take no additional parameters. The caller must
// not include "action" or "token" keys in the fields map.
//
// On success (response ok=true), if result is non-nil and the
// response contains data, the data is CBOR-decoded into result.
//
// On failure (response ok=false), returns a *CallError containing the
// server's error message and code. Connection and encoding errors are
// returned as plain errors (not *CallError).
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := c.buildRequest(action, fields)

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &CallError{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// buildRequest constructs the CBOR request map. Starts with the
// caller's fields (if any), then injects "action" and optionally
// "token".
func (c *Client) buildRequest(action string, fields map[string]any) map[string]any {
	var request map[string]any
	if fields != nil {
		request = make(map[string]any, len(fields)+2)
		for key, value := range fields {
			request[key] = value
		}
	} else {
		request = make(map[string]any, 2)
	}

	request["action"] = action
	if c.tokenBytes != nil {
		request["token"] = c.tokenBytes
	}

	return request
}

// send connects to the socket, writes the request, and reads the
// response. Each call creates a new connection.
func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side. CBOR is self-delimiting so this
	// isn't strictly necessary, but it lets the server's read side
	// see EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
