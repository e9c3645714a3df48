package node

import (
	"errors"
	"sync"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode() *Node {
	return New(&task.Task{ID: "table1"})
}

func TestTransition(t *testing.T) {
	n := newNode()
	assert.Equal(t, Pending, n.State())

	require.NoError(t, n.Transition(Ready))
	require.NoError(t, n.Transition(Running))

	err := n.Transition(Pending)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, Running, terr.From)
	assert.Equal(t, Pending, terr.To)
	assert.EqualError(t, err, "task 'table1': illegal transition running -> pending")
}

func TestSettle_OnlyOnce(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	n := newNode()

	boom := errors.New("upstream failed")
	assert.True(t, n.Settle(Blocked, boom, &wg))
	assert.False(t, n.Settle(Blocked, nil, &wg), "second settle is a no-op")
	wg.Wait()

	assert.Equal(t, Blocked, n.State())
	assert.ErrorIs(t, n.Err(), boom)
	assert.True(t, n.State().Terminal())
	assert.False(t, n.State().Satisfied())
}

func TestSettle_ConcurrentCallersDoneOnce(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	n := newNode()

	var settled sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		settled.Add(1)
		go func() {
			defer settled.Done()
			results <- n.Settle(Blocked, nil, &wg)
		}()
	}
	settled.Wait()
	close(results)
	wg.Wait()

	count := 0
	for ok := range results {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSettle_IllegalTransitionFails(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	n := newNode()

	// Pending cannot jump straight to Succeeded.
	assert.True(t, n.Settle(Succeeded, nil, &wg))
	wg.Wait()
	assert.Equal(t, Failed, n.State())
	var terr *TransitionError
	assert.True(t, errors.As(n.Err(), &terr))
}

func TestDuration(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	n := newNode()
	assert.Zero(t, n.Duration())

	require.NoError(t, n.Transition(Ready))
	require.NoError(t, n.Transition(Running))
	n.Settle(Succeeded, nil, &wg)
	assert.GreaterOrEqual(t, n.Duration().Nanoseconds(), int64(0))
	assert.True(t, n.State().Satisfied())
}

func TestDepCount(t *testing.T) {
	n := newNode()
	n.SetDepCount(2)
	assert.Equal(t, int32(1), n.DecrementDepCount())
	assert.Equal(t, int32(0), n.DecrementDepCount())
	assert.Equal(t, int32(0), n.DepCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "up-to-date", UpToDate.String())
	assert.Equal(t, "state(42)", State(42).String())
}
