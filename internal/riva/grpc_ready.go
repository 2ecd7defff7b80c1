package riva

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// waitForReady blocks until conn is Ready. Transient failures keep waiting
// (the channel reconnects on its own) until ctx ends.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("riva channel to %s shut down", conn.Target())
		}

		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("riva %s not ready (last state %s): %w", conn.Target(), state, ctx.Err())
		}
	}
}
