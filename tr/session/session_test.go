package session_test

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/catawampus/cwmpd/std/utils"
	"github.com/catawampus/cwmpd/tr/session"
	"github.com/stretchr/testify/require"
)

var (
	yes = utils.IdPtr(true)
	no  = utils.IdPtr(false)
)

func TestHappyPath(t *testing.T) {
	s := session.New("http://acs.example.com/", nil)
	require.Equal(t, session.StateInit, s.State())
	require.True(t, s.InformRequired())
	require.False(t, s.RequestAllowed())
	require.False(t, s.ResponseAllowed())

	s.Apply(session.Update{SentInform: yes})
	require.Equal(t, session.StateActive, s.State())
	require.False(t, s.InformRequired())
	require.True(t, s.RequestAllowed())
	require.True(t, s.ResponseAllowed())

	s.Apply(session.Update{CpeToAcsEmpty: yes})
	require.Equal(t, session.StateNoMore, s.State())
	require.False(t, s.RequestAllowed())
	require.True(t, s.ResponseAllowed())
	require.False(t, s.ShouldClose())

	s.Apply(session.Update{AcsToCpeEmpty: yes})
	require.Equal(t, session.StateDone, s.State())
	require.True(t, s.ShouldClose())
	require.False(t, s.ResponseAllowed())
}

func TestOnHold(t *testing.T) {
	s := session.New("http://acs/", nil)
	s.Apply(session.Update{SentInform: yes})

	s.Apply(session.Update{OnHold: yes})
	require.Equal(t, session.StateOnHold, s.State())
	require.False(t, s.RequestAllowed())
	require.True(t, s.ResponseAllowed())

	// unreported hold state does not release the hold
	s.Apply(session.Update{})
	s.Apply(session.Update{CpeToAcsEmpty: yes})
	require.Equal(t, session.StateOnHold, s.State())

	s.Apply(session.Update{OnHold: no})
	require.Equal(t, session.StateActive, s.State())
}

func TestIrrelevantInputs(t *testing.T) {
	s := session.New("http://acs/", nil)
	s.Apply(session.Update{CpeToAcsEmpty: yes, AcsToCpeEmpty: yes, OnHold: yes})
	require.Equal(t, session.StateInit, s.State())

	s.Apply(session.Update{SentInform: no})
	require.Equal(t, session.StateInit, s.State())

	// one edge per update: hold wins over the empty POST
	s.Apply(session.Update{SentInform: yes})
	s.Apply(session.Update{OnHold: yes, CpeToAcsEmpty: yes})
	require.Equal(t, session.StateOnHold, s.State())

	s.Apply(session.Update{OnHold: no})
	s.Apply(session.Update{CpeToAcsEmpty: yes})
	s.Apply(session.Update{SentInform: yes, OnHold: no})
	require.Equal(t, session.StateNoMore, s.State())
}

func TestCloseRunsScope(t *testing.T) {
	scope := session.NewScope()
	s := session.New("http://acs/", scope)

	calls := 0
	v, err := scope.Cached("k", func() (any, error) { calls++; return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, v)
	v, _ = scope.Cached("k", func() (any, error) { calls++; return 43, nil })
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)

	_, err = scope.Cached("bad", func() (any, error) { return nil, errors.New("nope") })
	require.Error(t, err)
	require.Equal(t, 1, scope.CachedLen())

	order := []string{}
	scope.RunAtEnd("a", func() { order = append(order, "a") })
	scope.RunAtEnd("b", func() {
		order = append(order, "b")
		scope.RunAtEnd("c", func() { order = append(order, "c") })
	})
	scope.RunAtEnd("a", func() { order = append(order, "a2") })

	s.PingReceived = true
	require.True(t, s.Close())
	require.Equal(t, []string{"a2", "b", "c"}, order)
	require.Equal(t, 0, scope.CachedLen())

	// callbacks run once
	session.New("http://acs/", scope).Close()
	require.Len(t, order, 3)
}

func TestCacheKey(t *testing.T) {
	require.Equal(t, session.CacheKey("ifstats", "eth0", 1), session.CacheKey("ifstats", "eth0", 1))
	require.NotEqual(t, session.CacheKey("ifstats", "eth0"), session.CacheKey("ifstats", "eth1"))
	require.NotEqual(t, session.CacheKey("ifstats", 1), session.CacheKey("ifstats", "1"))
}

func TestRetryWait(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	p := session.DefaultRetryParams
	require.Equal(t, time.Duration(0), session.RetryWait(0, p, rnd))

	bounds := []struct {
		n      int
		lo, hi time.Duration
	}{
		{1, 5 * time.Second, 10 * time.Second},
		{2, 10 * time.Second, 20 * time.Second},
		{3, 20 * time.Second, 40 * time.Second},
		{10, 2560 * time.Second, 5120 * time.Second},
		{11, 2560 * time.Second, 5120 * time.Second},
		{100, 2560 * time.Second, 5120 * time.Second},
	}
	for _, b := range bounds {
		for range 50 {
			w := session.RetryWait(b.n, p, rnd)
			require.GreaterOrEqual(t, w, b.lo, b.n)
			require.LessOrEqual(t, w, b.hi, b.n)
		}
	}

	q := session.RetryParamsFromModel(10, 3000)
	require.Equal(t, 10*time.Second, q.MinWait)
	require.Equal(t, 3.0, q.Multiplier)
	w := session.RetryWait(2, q, rnd)
	require.GreaterOrEqual(t, w, 30*time.Second)
	require.LessOrEqual(t, w, 90*time.Second)
}
