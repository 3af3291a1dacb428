package tracker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hamsync/internal/dam"
	"hamsync/internal/wire"
)

func TestTracker_OnAck_ResolvesPending(t *testing.T) {
	tr := New(func(wire.Frame) error { return nil })

	f := wire.NewGet("Q1", wire.BuildQuery("n", nil))
	sink, err := tr.Send(context.Background(), f, time.Second)
	require.NoError(t, err)

	reply := wire.NewPut("R1", "Q1", map[string]any{})
	tr.OnAck("Q1", reply)

	out := <-sink
	require.Equal(t, "R1", out.Ack.ID)
	require.False(t, tr.Pending("Q1"))
}

func TestTracker_OnDam_NonRetryable_ResolvesImmediately(t *testing.T) {
	tr := New(func(wire.Frame) error { return nil })

	f := wire.NewGet("Q2", wire.BuildQuery("n", nil))
	sink, err := tr.Send(context.Background(), f, time.Second)
	require.NoError(t, err)

	tr.OnDam("Q2", dam.New(dam.NotFound, "nope"))

	out := <-sink
	require.NotNil(t, out.Dam)
	require.Equal(t, dam.NotFound, out.Dam.Kind)
}

func TestTracker_Timeout_RetriesInsteadOfFailingImmediately(t *testing.T) {
	// Timeout has no attempt cap (spec.md §4.8), so a send that never
	// acks keeps retrying rather than failing the promise on the first
	// per-attempt deadline.
	tr := New(func(wire.Frame) error { return nil })

	f := wire.NewGet("Q3", wire.BuildQuery("n", nil))
	sink, err := tr.Send(context.Background(), f, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.True(t, tr.Pending("Q3"))

	select {
	case <-sink:
		t.Fatal("promise resolved before an ack/dam arrived")
	default:
	}
}

func TestTracker_Backpressure(t *testing.T) {
	tr := New(func(wire.Frame) error { return nil })
	tr.capacity = 1

	_, err := tr.Send(context.Background(), wire.NewGet("A", wire.BuildQuery("n", nil)), time.Second)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), wire.NewGet("B", wire.BuildQuery("n", nil)), time.Second)
	require.Error(t, err)
	require.IsType(t, ErrBackpressure{}, err)
}

func TestTracker_Cancel_NoFurtherCallbacks(t *testing.T) {
	tr := New(func(wire.Frame) error { return nil })

	sink, err := tr.Send(context.Background(), wire.NewGet("C1", wire.BuildQuery("n", nil)), time.Second)
	require.NoError(t, err)

	tr.Cancel("C1")
	require.False(t, tr.Pending("C1"))

	out, stillOpen := <-sink
	require.True(t, stillOpen)
	require.ErrorIs(t, out.Err, ErrCancelled)

	_, stillOpen = <-sink
	require.False(t, stillOpen)

	// A late ack for a cancelled id must be a silent no-op.
	tr.OnAck("C1", wire.NewPut("late", "C1", map[string]any{}))
}

func TestTracker_OnInbound_Classification(t *testing.T) {
	tr := New(func(wire.Frame) error { return nil })

	sent := wire.NewGet("Q5", wire.BuildQuery("n", nil))
	_, err := tr.Send(context.Background(), sent, time.Second)
	require.NoError(t, err)

	reply := wire.NewPut("R5", "Q5", map[string]any{})
	require.Equal(t, ClassifyReply, tr.OnInbound(reply))

	fresh := wire.NewGet("G6", wire.BuildQuery("m", nil))
	require.Equal(t, ClassifyNew, tr.OnInbound(fresh))
	require.Equal(t, ClassifyDup, tr.OnInbound(fresh))
}

func TestTracker_DedupWindow_Bounded(t *testing.T) {
	tr := New(func(wire.Frame) error { return nil })
	tr.window = 4

	for i := 0; i < 10; i++ {
		tr.OnInbound(wire.NewGet(itoa(i), wire.BuildQuery("n", nil)))
	}
	tr.dedupMu.Lock()
	size := len(tr.dedup)
	tr.dedupMu.Unlock()
	require.LessOrEqual(t, size, 4)
}

func TestTracker_ConcurrentSends_NoRace(t *testing.T) {
	var sent int64
	tr := New(func(wire.Frame) error {
		atomic.AddInt64(&sent, 1)
		return nil
	})

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			id := itoa(n)
			sink, err := tr.Send(context.Background(), wire.NewGet(id, wire.BuildQuery("n", nil)), time.Second)
			if err != nil {
				return
			}
			tr.OnAck(id, wire.NewPut("r"+id, id, map[string]any{}))
			<-sink
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	require.EqualValues(t, 20, atomic.LoadInt64(&sent))
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}
