package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, socketPath string, h HandlerFunc) (cancel func()) {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, listener, h, nil)
	}()
	return func() {
		stop()
		require.NoError(t, <-done)
	}
}

func TestSendRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dsnbridge.sock")
	stop := serve(t, socketPath, func(_ context.Context, req Request) Response {
		require.Equal(t, CommandStatus, req.Command)
		return Response{OK: true, Recognizer: "recognizing", Mode: "dialogue", DialogueID: 42}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "recognizing", resp.Recognizer)
	require.Equal(t, "dialogue", resp.Mode)
	require.Equal(t, int64(42), resp.DialogueID)

	stop()
}

func TestSendSurfacesHandlerError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dsnbridge.sock")
	stop := serve(t, socketPath, func(_ context.Context, req Request) Response {
		return Response{OK: false, Error: "unknown command " + req.Command}
	})
	defer stop()

	resp, err := Send(context.Background(), socketPath, Request{Command: "dance"}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown command dance")
	require.False(t, resp.OK)
}

func TestSendDecodeResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dsnbridge.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dsnbridge.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dsnbridge.sock")
	stop := serve(t, socketPath, func(context.Context, Request) Response {
		return Response{OK: true}
	})
	defer stop()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")
}

func TestProbe(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "dsnbridge.sock")
	stop := serve(t, socketPath, func(_ context.Context, req Request) Response {
		if req.Command == CommandStatus {
			return Response{OK: true, Recognizer: "stopped"}
		}
		return Response{OK: false, Error: "bad"}
	})

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	stop()

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestProbeMissingSocket(t *testing.T) {
	alive, err := Probe(context.Background(), filepath.Join(t.TempDir(), "absent.sock"), 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)
}
