package riva

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

func response(results ...Transcript) *dynamicpb.Message {
	resp := dynamicpb.NewMessage(asr.response)
	list := resp.Mutable(asr.response.Fields().ByName("results")).List()
	for _, r := range results {
		res := dynamicpb.NewMessage(asr.result)
		alt := dynamicpb.NewMessage(asr.alternative)
		setField(alt, "transcript", protoreflect.ValueOfString(r.Text))
		setField(alt, "confidence", protoreflect.ValueOfFloat32(r.Confidence))
		res.Mutable(asr.result.Fields().ByName("alternatives")).List().Append(protoreflect.ValueOfMessage(alt))
		setField(res, "is_final", protoreflect.ValueOfBool(r.Final))
		list.Append(protoreflect.ValueOfMessage(res))
	}
	return resp
}

type testRivaServer struct {
	responses []*dynamicpb.Message
	streamErr error

	mu          sync.Mutex
	method      string
	config      protoreflect.Message
	audioChunks int
}

func (s *testRivaServer) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	s.mu.Lock()
	s.method = method
	s.mu.Unlock()

	responded := false
	for {
		req := dynamicpb.NewMessage(asr.request)
		err := stream.RecvMsg(req)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if req.Has(asr.request.Fields().ByName("streaming_config")) {
			s.mu.Lock()
			s.config = getField(req, "streaming_config").Message()
			s.mu.Unlock()
			continue
		}
		if len(getField(req, "audio_content").Bytes()) > 0 {
			s.mu.Lock()
			s.audioChunks++
			s.mu.Unlock()
		}
		if responded {
			continue
		}
		responded = true
		for _, resp := range s.responses {
			if err := stream.SendMsg(resp); err != nil {
				return err
			}
		}
		if s.streamErr != nil {
			return s.streamErr
		}
	}
}

func (s *testRivaServer) chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioChunks
}

func startTestRivaServer(t *testing.T, srv *testRivaServer) (string, func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer(grpc.UnknownServiceHandler(srv.handle))
	go func() {
		_ = grpcServer.Serve(lis)
	}()

	shutdown := func() {
		grpcServer.Stop()
		_ = lis.Close()
	}
	return lis.Addr().String(), shutdown
}

// startBufconnServer serves srv in memory and returns the stream config
// that reaches it.
func startBufconnServer(t *testing.T, srv *testRivaServer) StreamConfig {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer(grpc.UnknownServiceHandler(srv.handle))
	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(func() {
		grpcServer.Stop()
		_ = lis.Close()
	})

	return StreamConfig{
		Endpoint:    "passthrough:///bufnet",
		DialTimeout: 2 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}
}

type transcriptLog struct {
	mu  sync.Mutex
	got []Transcript
}

func (l *transcriptLog) add(t Transcript) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, t)
}

func (l *transcriptLog) all() []Transcript {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transcript(nil), l.got...)
}

func TestDialStreamEndToEndWithDebugSinkAndSpeechContexts(t *testing.T) {
	server := &testRivaServer{
		responses: []*dynamicpb.Message{
			response(Transcript{Text: "open ma", Confidence: 0.2}),
			response(Transcript{Text: "  open   map ", Confidence: 0.8, Final: true}),
		},
	}
	endpoint, shutdown := startTestRivaServer(t, server)
	defer shutdown()

	var debug bytes.Buffer
	var log transcriptLog

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := DialStream(ctx, StreamConfig{
		Endpoint:             endpoint,
		LanguageCode:         "en-US",
		Model:                "parakeet",
		AutomaticPunctuation: true,
		SpeechPhrases: []SpeechPhrase{
			{Phrase: "open map", Boost: 12},
			{Phrase: "wait", Boost: 12},
		},
		DialTimeout:           2 * time.Second,
		DebugResponseSinkJSON: &debug,
	}, log.add)
	require.NoError(t, err)

	require.NoError(t, stream.SendAudio([]byte{1, 2, 3, 4}))
	require.NoError(t, stream.SendAudio(nil))

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := log.all()[0]
	require.Equal(t, "open map", got.Text)
	require.True(t, got.Final)
	require.InDelta(t, 0.8, got.Confidence, 1e-6)

	require.NoError(t, stream.Cancel())

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Equal(t, streamMethod, server.method)
	require.Equal(t, 1, server.audioChunks)
	require.NotNil(t, server.config)

	rc := getField(server.config, "config").Message()
	require.Equal(t, int64(16000), getField(rc, "sample_rate_hertz").Int())
	require.Equal(t, int64(1), getField(rc, "audio_channel_count").Int())
	require.Equal(t, "en-US", getField(rc, "language_code").String())
	require.Equal(t, "parakeet", getField(rc, "model").String())
	require.True(t, getField(rc, "enable_automatic_punctuation").Bool())
	require.Equal(t, protoreflect.EnumNumber(encodingLinearPCM), getField(rc, "encoding").Enum())

	contexts := getField(rc, "speech_contexts").List()
	require.Equal(t, 2, contexts.Len())
	first := contexts.Get(0).Message()
	require.Equal(t, "open map", getField(first, "phrases").List().Get(0).String())
	require.InDelta(t, 12, getField(first, "boost").Float(), 1e-6)

	require.Contains(t, debug.String(), "results")
}

func TestDialStreamDeliversInterimWhenRequested(t *testing.T) {
	server := &testRivaServer{
		responses: []*dynamicpb.Message{
			response(Transcript{Text: "open"}),
			response(Transcript{Text: "open map", Final: true}),
		},
	}
	cfg := startBufconnServer(t, server)
	cfg.InterimResults = true

	var log transcriptLog
	stream, err := DialStream(context.Background(), cfg, log.add)
	require.NoError(t, err)
	defer stream.Cancel()

	require.NoError(t, stream.SendAudio([]byte{1, 2}))
	require.Eventually(t, func() bool { return len(log.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, log.all()[0].Final)
	require.True(t, log.all()[1].Final)
}

func TestDialStreamEmptyEndpoint(t *testing.T) {
	_, err := DialStream(context.Background(), StreamConfig{Endpoint: "   "}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "endpoint is empty")
}

func TestDialStreamReadinessTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := DialStream(ctx, StreamConfig{
		Endpoint:    "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "readiness")
}

func TestCheckReady(t *testing.T) {
	cfg := startBufconnServer(t, &testRivaServer{})
	require.NoError(t, CheckReady(context.Background(), cfg))

	err := CheckReady(context.Background(), StreamConfig{Endpoint: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}

func TestWithTimeoutTimesOut(t *testing.T) {
	_, err := withTimeout(context.Background(), 20*time.Millisecond, func() (grpc.ClientStream, error) {
		time.Sleep(120 * time.Millisecond)
		return nil, nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestWithTimeoutReturnsCallResult(t *testing.T) {
	want := errors.New("boom")
	_, err := withTimeout(context.Background(), time.Second, func() (struct{}, error) {
		return struct{}{}, want
	})
	require.ErrorIs(t, err, want)

	n, err := withTimeout(context.Background(), 0, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestWithTimeoutHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := withTimeout(ctx, time.Second, func() (struct{}, error) {
		time.Sleep(50 * time.Millisecond)
		return struct{}{}, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestServerStreamErrorEndsStream(t *testing.T) {
	server := &testRivaServer{streamErr: status.Error(codes.Internal, "boom")}
	cfg := startBufconnServer(t, server)

	stream, err := DialStream(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer stream.Cancel()

	require.NoError(t, stream.SendAudio([]byte{1, 2}))

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after server error")
	}
	require.ErrorContains(t, stream.Err(), "boom")
	require.ErrorContains(t, stream.SendAudio([]byte{3}), "receive loop failed")
}

func TestSendAudioAfterCancelReturnsError(t *testing.T) {
	cfg := startBufconnServer(t, &testRivaServer{})

	stream, err := DialStream(context.Background(), cfg, nil)
	require.NoError(t, err)
	_ = stream.Cancel()

	err = stream.SendAudio([]byte{9, 9, 9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed")
}

func TestTranscriptsSkipEmptyResults(t *testing.T) {
	resp := response(
		Transcript{Text: "   ", Final: true},
		Transcript{Text: "wait", Confidence: 0.5, Final: true},
	)
	empty := dynamicpb.NewMessage(asr.result)
	resp.Mutable(asr.response.Fields().ByName("results")).List().Append(protoreflect.ValueOfMessage(empty))

	got := transcripts(resp)
	require.Equal(t, []Transcript{{Text: "wait", Confidence: 0.5, Final: true}}, got)
}
