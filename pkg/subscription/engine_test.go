package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostrworker.dev/pkg/mesh"
	"nostrworker.dev/pkg/wire"
)

func recordingSink() (SendFrame, func() []mesh.Frame) {
	var mu sync.Mutex
	var frames []mesh.Frame
	return func(f mesh.Frame) error {
			mu.Lock()
			defer mu.Unlock()
			frames = append(frames, f)
			return nil
		}, func() []mesh.Frame {
			mu.Lock()
			defer mu.Unlock()
			return append([]mesh.Frame(nil), frames...)
		}
}

func TestSubscribeDedupRefCountAndCleanup(t *testing.T) {
	sink, sent := recordingSink()
	var closed []string
	e := New(sink, func(fp string) { closed = append(closed, fp) }, nil, nil)

	buf1, err := e.Subscribe("feed", []wire.Request{{Relays: []string{"wss://r"}}}, wire.Options{})
	require.NoError(t, err)
	buf2, err := e.Subscribe("feed", []wire.Request{{Relays: []string{"wss://r"}}}, wire.Options{})
	require.NoError(t, err)
	assert.Same(t, buf1, buf2)
	assert.Equal(t, 2, e.RefCount("feed"))

	e.Unsubscribe("feed")
	assert.Equal(t, 1, e.RefCount("feed"))

	e.Cleanup()
	assert.Equal(t, 1, e.RefCount("feed"), "ring survives cleanup while refCount > 0")

	e.Unsubscribe("feed")
	e.Cleanup()
	assert.Equal(t, 0, e.RefCount("feed"))
	assert.Contains(t, closed, "feed")

	var sawUnsubscribe bool
	for _, f := range sent() {
		if f.Type == mesh.FrameUnsubscribe {
			sawUnsubscribe = true
		}
	}
	assert.True(t, sawUnsubscribe, "Unsubscribe control message observed on the Parser channel")
}

func TestPerpetualSubscriptionSurvivesCleanup(t *testing.T) {
	sink, _ := recordingSink()
	e := New(sink, nil, nil, []string{"keep"})
	_, err := e.Subscribe("keep", nil, wire.Options{})
	require.NoError(t, err)
	e.Unsubscribe("keep")
	e.Cleanup()
	assert.Equal(t, 0, e.RefCount("keep"), "still registered, just refCount 0")
}

func TestPublishIsIdempotentByFingerprint(t *testing.T) {
	sink, _ := recordingSink()
	e := New(sink, nil, nil, nil)
	b1, err := e.Publish("pub-1", []byte(`["EVENT",{}]`), []string{"wss://r"})
	require.NoError(t, err)
	b2, err := e.Publish("pub-1", []byte(`["EVENT",{}]`), []string{"wss://r"})
	require.NoError(t, err)
	assert.Same(t, b1, b2)
}

func TestSetDefaultBytesPerEventInfluencesSubscribeBufferSize(t *testing.T) {
	sink, _ := recordingSink()
	e := New(sink, nil, nil, nil)
	e.SetDefaultBytesPerEvent(64)

	buf, err := e.Subscribe("feed", []wire.Request{{Relays: []string{"wss://r"}}}, wire.Options{})
	require.NoError(t, err)
	assert.Equal(t, CalculateBufferSize(0, 64), len(buf.Bytes()))
}

func TestCalculateBufferSizeMatchesSpecFormula(t *testing.T) {
	got := CalculateBufferSize(100, 3072)
	want := 4 + int(float64(100*3072)*1.25)
	assert.Equal(t, want, got)
}

func TestCalculateBufferSizeDefaults(t *testing.T) {
	got := CalculateBufferSize(0, 0)
	want := 4 + int(float64(DefaultEventLimit*wire.DefaultBytesPerEvent)*1.25)
	assert.Equal(t, want, got)
}

// TestColdStartGatingCapsDeliveryPerFrame exercises spec.md §8 Scenario 2:
// enqueueing far more messages than a single cold-start frame budget,
// delivery is capped at ColdTokensPerFrame per Tick.
func TestColdStartGatingCapsDeliveryPerFrame(t *testing.T) {
	sink, _ := recordingSink()
	e := New(sink, nil, nil, nil)
	buf, err := e.Subscribe("cold", nil, wire.Options{})
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		require.True(t, buf.Append([]byte{byte(i), byte(i >> 8)}))
	}

	var delivered int
	e.AddEventListener(SubscriptionTopic("cold"), func(payload []byte) {
		delivered++
	})

	start := time.Now()
	e.Tick(start)
	assert.Equal(t, ColdTokensPerFrame, delivered, "first frame delivers exactly the cold token budget")

	e.Tick(start.Add(FrameInterval))
	assert.Equal(t, 2*ColdTokensPerFrame, delivered, "second frame delivers another cold budget")

	e.Tick(start.Add(ColdWindow + time.Millisecond))
	assert.Equal(t, 2*ColdTokensPerFrame+HotTokensPerFrame, delivered, "after cold start the per-frame cap rises")
}

func TestUnsubscribeCancelsFurtherDelivery(t *testing.T) {
	sink, _ := recordingSink()
	e := New(sink, nil, nil, nil)
	buf, err := e.Subscribe("s", nil, wire.Options{})
	require.NoError(t, err)
	require.True(t, buf.Append([]byte("one")))

	var delivered int
	e.AddEventListener(SubscriptionTopic("s"), func([]byte) { delivered++ })
	e.Tick(time.Now())
	assert.Equal(t, 1, delivered)

	e.Unsubscribe("s")
	e.Cleanup()
	require.True(t, buf.Append([]byte("two")))
	e.Tick(time.Now())
	assert.Equal(t, 1, delivered, "no further delivery once the record is cleaned up")
}
