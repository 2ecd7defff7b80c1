// Package riva runs speech recognition against an NVIDIA Riva ASR server
// and matches its transcripts to the active grammar set.
package riva

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/dynamicpb"
)

// SpeechPhrase is one vocabulary boost phrase in request-ready form.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}

// StreamConfig controls stream initialization and recognition behavior.
type StreamConfig struct {
	Endpoint             string
	LanguageCode         string
	Model                string
	SampleRate           int
	AutomaticPunctuation bool
	InterimResults       bool
	SpeechPhrases        []SpeechPhrase
	DialTimeout          time.Duration
	// DialOptions are appended to the default insecure transport options.
	DialOptions []grpc.DialOption
	// DebugResponseSinkJSON receives every response as one JSON line.
	DebugResponseSinkJSON io.Writer
}

func (cfg StreamConfig) withDefaults() StreamConfig {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return cfg
}

// Stream wraps one active StreamingRecognize RPC.
type Stream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream

	onTranscript  func(Transcript)
	debugSinkJSON io.Writer
	recvDone      chan struct{}

	mu         sync.Mutex
	recvErr    error
	closedSend bool
}

// DialStream connects, sends the streaming config and starts the receive
// loop. onTranscript is called from the receive goroutine for every final
// result, and for interim ones when InterimResults is set.
func DialStream(ctx context.Context, cfg StreamConfig, onTranscript func(Transcript)) (*Stream, error) {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return nil, errors.New("riva endpoint is empty")
	}

	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for riva grpc readiness: %w", err)
	}

	stream, err := withTimeout(ctx, cfg.DialTimeout, func() (grpc.ClientStream, error) {
		return conn.NewStream(ctx, &grpc.StreamDesc{
			StreamName:    streamMethodName,
			ServerStreams: true,
			ClientStreams: true,
		}, streamMethod)
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open streaming recognizer: %w", err)
	}

	if _, err := withTimeout(ctx, cfg.DialTimeout, func() (struct{}, error) {
		return struct{}{}, stream.SendMsg(configRequest(cfg))
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send initial streaming config: %w", err)
	}

	if onTranscript == nil {
		onTranscript = func(Transcript) {}
	}
	s := &Stream{
		conn:          conn,
		stream:        stream,
		onTranscript:  onTranscript,
		debugSinkJSON: cfg.DebugResponseSinkJSON,
		recvDone:      make(chan struct{}),
	}
	go s.recvLoop(cfg.InterimResults)
	return s, nil
}

func dial(cfg StreamConfig) (*grpc.ClientConn, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)
	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial riva grpc %q: %w", cfg.Endpoint, err)
	}
	return conn, nil
}

// CheckReady dials endpoint and waits for the connection to become ready.
func CheckReady(ctx context.Context, cfg StreamConfig) error {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return errors.New("riva endpoint is empty")
	}
	conn, err := dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	return waitForReady(readyCtx, conn)
}

// recvLoop continuously receives recognition responses until stream close/error.
func (s *Stream) recvLoop(interim bool) {
	defer close(s.recvDone)

	for {
		resp := dynamicpb.NewMessage(asr.response)
		err := s.stream.RecvMsg(resp)
		if err == nil {
			s.recordResponse(resp, interim)
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}

		s.mu.Lock()
		s.recvErr = err
		s.mu.Unlock()
		return
	}
}

func (s *Stream) recordResponse(resp *dynamicpb.Message, interim bool) {
	if sink := s.debugSinkJSON; sink != nil {
		b, err := protojson.Marshal(resp)
		if err == nil {
			_, _ = sink.Write(append(b, '\n'))
		}
	}

	for _, t := range transcripts(resp) {
		if t.Final || interim {
			s.onTranscript(t)
		}
	}
}

// SendAudio sends one chunk of PCM audio over the active stream.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return errors.New("stream already closed for sending")
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	return s.stream.SendMsg(audioRequest(chunk))
}

// Done is closed when the receive loop ends.
func (s *Stream) Done() <-chan struct{} {
	return s.recvDone
}

// Err returns the receive error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvErr
}

// Cancel aborts stream processing, closes the connection and waits for
// the receive loop to exit.
func (s *Stream) Cancel() error {
	s.mu.Lock()
	if !s.closedSend {
		s.closedSend = true
		_ = s.stream.CloseSend()
	}
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.recvDone
	return err
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
