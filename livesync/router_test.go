package livesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter_DeliversToAllHandlers(t *testing.T) {
	r := NewRouter()

	var got1, got2 []Envelope
	r.AddHandler(func(ev Envelope) { got1 = append(got1, ev) })
	r.AddHandler(func(ev Envelope) { got2 = append(got2, ev) })

	ev := Envelope{Type: TypeScanProgress, LibraryID: "lib1", FilesFound: 3}
	r.Dispatch(ev)

	assert.Equal(t, []Envelope{ev}, got1, "first handler should receive the envelope exactly once")
	assert.Equal(t, []Envelope{ev}, got2, "second handler should receive the envelope exactly once")
}

func TestRouter_UnsubscribeStopsDelivery(t *testing.T) {
	r := NewRouter()

	calls := 0
	unsubscribe := r.AddHandler(func(Envelope) { calls++ })

	r.Dispatch(Envelope{Type: TypeJobProgress})
	unsubscribe()
	r.Dispatch(Envelope{Type: TypeJobProgress})

	assert.Equal(t, 1, calls, "unsubscribed handler must not be invoked")
	assert.Equal(t, 0, r.Len())
}

func TestRouter_UnsubscribeIdempotent(t *testing.T) {
	r := NewRouter()

	unsubscribe := r.AddHandler(func(Envelope) {})
	r.AddHandler(func(Envelope) {})

	unsubscribe()
	unsubscribe()

	assert.Equal(t, 1, r.Len())
}

func TestRouter_PanicDoesNotStopOthers(t *testing.T) {
	r := NewRouter()

	delivered := 0
	r.AddHandler(func(Envelope) { panic("boom") })
	r.AddHandler(func(Envelope) { delivered++ })
	r.AddHandler(func(Envelope) { panic("boom again") })

	r.Dispatch(Envelope{Type: TypeScanComplete})

	assert.Equal(t, 1, delivered, "surviving handler should still be invoked")
}

func TestRouter_UnsubscribeDuringDispatch(t *testing.T) {
	r := NewRouter()

	var unsubscribe func()
	first := 0
	second := 0
	unsubscribe = r.AddHandler(func(Envelope) {
		first++
		unsubscribe() // removes itself mid-dispatch
	})
	r.AddHandler(func(Envelope) { second++ })

	r.Dispatch(Envelope{Type: TypeJobComplete})
	r.Dispatch(Envelope{Type: TypeJobComplete})

	assert.Equal(t, 1, first, "self-unsubscribed handler must not see later dispatches")
	assert.Equal(t, 2, second)
}
