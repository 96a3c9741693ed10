package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arzzra/astproxy/pkg/ami/frame"
)

func TestEmitFanOut(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var got []string
	record := func(tag string) Handler {
		return func(f frame.Frame) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+f.Get("Channel"))
		}
	}

	b.On("Hangup", record("a"))
	b.On("hangup", record("b"))
	b.On(Wildcard, record("all"))
	b.On("Newchannel", record("other"))

	n := b.Emit("Hangup", frame.New("Event", "Hangup", "Channel", "SIP/200-1"))

	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"a:SIP/200-1", "b:SIP/200-1", "all:SIP/200-1"}, got)
}

func TestHandlerPanicIsolated(t *testing.T) {
	b := New()

	called := false
	b.On("Hangup", func(frame.Frame) { panic("subscriber bug") })
	b.On("Hangup", func(frame.Frame) { called = true })

	var n int
	assert.NotPanics(t, func() {
		n = b.Emit("Hangup", frame.New("Event", "Hangup"))
	})
	assert.True(t, called)
	assert.Equal(t, 1, n)
}

func TestHandlersReceiveCopies(t *testing.T) {
	b := New()

	b.On("Hangup", func(f frame.Frame) { f.Set("Channel", "mutated") })

	var seen string
	b.On("Hangup", func(f frame.Frame) { seen = f.Get("Channel") })

	orig := frame.New("Event", "Hangup", "Channel", "SIP/200-1")
	b.Emit("Hangup", orig)

	assert.Equal(t, "SIP/200-1", seen)
	assert.Equal(t, "SIP/200-1", orig.Get("Channel"))
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	count := 0
	off := b.On("Hangup", func(frame.Frame) { count++ })
	assert.Equal(t, 1, b.Subscribers("Hangup"))

	b.Emit("Hangup", frame.New("Event", "Hangup"))
	off()
	off()
	b.Emit("Hangup", frame.New("Event", "Hangup"))

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.Subscribers("Hangup"))
}

func TestUnsubscribeDuringEmit(t *testing.T) {
	b := New()

	var off func()
	calls := 0
	off = b.On("Hangup", func(frame.Frame) {
		calls++
		off()
	})
	b.On("Hangup", func(frame.Frame) { calls++ })

	b.Emit("Hangup", frame.New("Event", "Hangup"))
	b.Emit("Hangup", frame.New("Event", "Hangup"))

	assert.Equal(t, 3, calls)
}
