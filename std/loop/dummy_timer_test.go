package loop_test

import (
	"testing"
	"time"

	"github.com/catawampus/cwmpd/std/loop"
	tu "github.com/catawampus/cwmpd/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	tu.SetT(t)

	tm := loop.NewDummyTimer()
	require.Equal(t, tu.NoErr(time.Parse(time.RFC3339, "1970-01-01T00:00:00Z")), tm.Now())
	tm.MoveForward(10 * time.Second)
	require.Equal(t, tu.NoErr(time.Parse(time.RFC3339, "1970-01-01T00:00:10Z")), tm.Now())
}

func TestScheduleOrder(t *testing.T) {
	tm := loop.NewDummyTimer()
	fired := []int{}
	tm.Schedule(20*time.Second, func() { fired = append(fired, 2) })
	tm.Schedule(10*time.Second, func() { fired = append(fired, 1) })
	tm.Schedule(15*time.Second, func() {
		fired = append(fired, 3)
		tm.Schedule(time.Second, func() { fired = append(fired, 4) })
	})

	tm.MoveForward(9 * time.Second)
	require.Empty(t, fired)
	tm.MoveForward(7 * time.Second)
	require.Equal(t, []int{1, 3, 4}, fired)
	tm.MoveForward(10 * time.Second)
	require.Equal(t, []int{1, 3, 4, 2}, fired)
	require.Equal(t, 0, tm.Pending())
}

func TestCancel(t *testing.T) {
	tm := loop.NewDummyTimer()
	val := 0
	cancel := tm.Schedule(10*time.Second, func() { val = 1 })
	require.NoError(t, cancel())
	require.ErrorIs(t, cancel(), loop.ErrCanceled)
	tm.MoveForward(11 * time.Second)
	require.Equal(t, 0, val)

	cancel = tm.Schedule(time.Second, func() { val = 2 })
	tm.MoveForward(time.Second)
	require.Equal(t, 2, val)
	require.ErrorIs(t, cancel(), loop.ErrCanceled)
}
