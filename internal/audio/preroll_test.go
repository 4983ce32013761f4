package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreroll_DropsOldest(t *testing.T) {
	p := NewPreroll(3)

	for _, f := range []string{"A", "B", "C", "D", "E"} {
		p.Push([]byte(f))
	}
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 2, p.Dropped())

	var got []string
	n, err := p.DrainInto(func(frame []byte) error {
		got = append(got, string(frame))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"C", "D", "E"}, got)
	assert.Equal(t, 0, p.Len())
}

func TestPreroll_NeverExceedsMax(t *testing.T) {
	for _, pushed := range []int{0, 1, 199, 200, 201, 1000} {
		p := NewPreroll(DefaultPrerollFrames)
		for i := 0; i < pushed; i++ {
			p.Push([]byte{byte(i), byte(i >> 8)})
			require.LessOrEqual(t, p.Len(), DefaultPrerollFrames)
		}

		want := pushed
		if want > DefaultPrerollFrames {
			want = DefaultPrerollFrames
		}
		first := pushed - want

		i := first
		n, err := p.DrainInto(func(frame []byte) error {
			assert.Equal(t, []byte{byte(i), byte(i >> 8)}, frame)
			i++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestPreroll_PushReportsEviction(t *testing.T) {
	p := NewPreroll(1)
	assert.False(t, p.Push([]byte("a")))
	assert.True(t, p.Push([]byte("b")))
}

func TestPreroll_DrainStopsOnSinkError(t *testing.T) {
	p := NewPreroll(5)
	for _, f := range []string{"A", "B", "C"} {
		p.Push([]byte(f))
	}

	boom := errors.New("boom")
	calls := 0
	n, err := p.DrainInto(func([]byte) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, p.Len())
}

func TestPreroll_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultPrerollFrames, NewPreroll(0).Max())
}
