// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"io"
)

// ConnHandler serves one accepted connection. It gets exclusive use of
// stream for the duration of the call; the Upstream closes stream once the
// handler returns, whatever the outcome.
type ConnHandler func(ctx context.Context, stream io.ReadWriter) error

// Upstream represents a source of requests (a Modbus master connecting to us).
// It acts as a Server.
type Upstream interface {
	// Start starts the server and blocks. It should be called in a goroutine.
	// A failure to listen is returned; per-connection failures are not.
	Start(ctx context.Context, handler ConnHandler) error
	Close() error
}
