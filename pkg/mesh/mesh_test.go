package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Type: FrameSubscribe, Payload: []byte("hello")}
	b, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, f.Type, got.Type)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestWorkerQueuesBeforeReadyAndReplays(t *testing.T) {
	w := NewWorker("parser")
	in := make(chan []byte, 4)
	w.AttachInbound("ui", in)

	frame, _ := Encode(Frame{Type: FrameSubscribe, Payload: []byte("a")})
	in <- frame // sent before Run/markReady

	var got []FrameType
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		w.Run(ctx, func(ctx context.Context, from string, f Frame) {
			got = append(got, f.Type)
			if len(got) == 1 {
				close(done)
			}
		}, nil)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued frame was never delivered after ready")
	}
	cancel()
	assert.Equal(t, []FrameType{FrameSubscribe}, got)
}

func TestWorkerIgnoresWake(t *testing.T) {
	w := NewWorker("cache")
	in := make(chan []byte, 4)
	w.AttachInbound("ui", in)

	wake, _ := Encode(Frame{Type: FrameWake})
	real, _ := Encode(Frame{Type: FramePublish, Payload: []byte("x")})

	var got []FrameType
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handled := make(chan struct{}, 2)
	go w.Run(ctx, func(ctx context.Context, from string, f Frame) {
		got = append(got, f.Type)
		handled <- struct{}{}
	}, nil)

	in <- wake
	in <- real

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the non-wake frame")
	}
	assert.Equal(t, []FrameType{FramePublish}, got)
}

func TestWorkerShutdownRunsHookAndExits(t *testing.T) {
	w := NewWorker("connections")
	in := make(chan []byte, 4)
	w.AttachInbound("ui", in)

	shutdownRan := make(chan struct{})
	loopExited := make(chan struct{})
	ctx := context.Background()
	go func() {
		w.Run(ctx, func(context.Context, string, Frame) {}, func() { close(shutdownRan) })
		close(loopExited)
	}()

	frame, _ := Encode(Frame{Type: FrameShutdown})
	in <- frame

	select {
	case <-shutdownRan:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook never ran")
	}
	select {
	case <-loopExited:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after shutdown")
	}
}

func TestMeshTopologyRoutesParserToCacheToConnections(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectionsGotIt := make(chan Frame, 1)

	go m.Parser.Run(ctx, func(ctx context.Context, from string, f Frame) {
		if from == "ui" {
			_ = m.Parser.Send("cache", f)
		}
	}, nil)
	go m.Cache.Run(ctx, func(ctx context.Context, from string, f Frame) {
		if from == "parser" {
			_ = m.Cache.Send("connections", f)
		}
	}, nil)
	go m.Connections.Run(ctx, func(ctx context.Context, from string, f Frame) {
		if from == "cache" {
			connectionsGotIt <- f
		}
	}, nil)
	go m.Crypto.Run(ctx, func(context.Context, string, Frame) {}, nil)

	require.NoError(t, m.SendToParser(Frame{Type: FrameSubscribe, Payload: []byte("req-1")}))

	select {
	case f := <-connectionsGotIt:
		assert.Equal(t, FrameSubscribe, f.Type)
		assert.Equal(t, []byte("req-1"), f.Payload)
	case <-time.After(time.Second):
		t.Fatal("frame never reached Connections through Parser->Cache->Connections")
	}
}

func TestMeshShutdownStopsAllWorkers(t *testing.T) {
	m := New()
	ctx := context.Background()
	done := make(chan struct{}, 4)
	noop := func(context.Context, string, Frame) {}
	go func() { m.Parser.Run(ctx, noop, nil); done <- struct{}{} }()
	go func() { m.Cache.Run(ctx, noop, nil); done <- struct{}{} }()
	go func() { m.Connections.Run(ctx, noop, nil); done <- struct{}{} }()
	go func() { m.Crypto.Run(ctx, noop, nil); done <- struct{}{} }()

	m.Shutdown()
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all workers stopped")
		}
	}
}
