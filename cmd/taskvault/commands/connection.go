// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/taskvault/taskvault/lib/config"
	"github.com/taskvault/taskvault/lib/service"
)

// callTimeout bounds a single CLI request to the ledger service. The
// engine commits synchronously, so anything slower than this means
// the daemon is stuck, not busy.
const callTimeout = 30 * time.Second

// serviceParams is embedded by every params struct that talks to the
// ledger service. It contributes the --socket flag.
type serviceParams struct {
	Socket string `flag:"socket" desc:"ledger service socket path (default: from configuration)"`
}

// socketPath resolves the service socket: the --socket flag, then
// $TASKVAULT_SOCKET, then the loaded configuration.
func (s *serviceParams) socketPath() (string, error) {
	if s.Socket != "" {
		return s.Socket, nil
	}
	if path := os.Getenv("TASKVAULT_SOCKET"); path != "" {
		return path, nil
	}

	var cfg *config.Config
	var err error
	if os.Getenv("TASKVAULT_CONFIG") != "" {
		cfg, err = config.Load()
		if err != nil {
			return "", fmt.Errorf("loading configuration: %w", err)
		}
	} else {
		cfg = config.Default()
	}
	return cfg.Ledger.SocketPath, nil
}

// call sends one request to the ledger service and decodes the
// response into result (which may be nil).
func (s *serviceParams) call(action string, fields map[string]any, result any) error {
	path, err := s.socketPath()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return service.NewClient(path).Call(ctx, action, fields, result)
}

// callWithToken is like call but attaches arbitration token bytes
// read from tokenPath.
func (s *serviceParams) callWithToken(tokenPath, action string, fields map[string]any, result any) error {
	path, err := s.socketPath()
	if err != nil {
		return err
	}
	client, err := service.NewClientWithTokenFile(path, tokenPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return client.Call(ctx, action, fields, result)
}
