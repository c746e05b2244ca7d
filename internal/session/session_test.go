package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/model"
)

type countingRefresher struct {
	calls   atomic.Int32
	gate    chan struct{}
	token   string
	err     error
	entered chan struct{}
	once    sync.Once
}

func (c *countingRefresher) RefreshToken(_ context.Context, refresh string) (string, error) {
	c.calls.Add(1)
	if c.entered != nil {
		c.once.Do(func() { close(c.entered) })
	}
	if c.gate != nil {
		<-c.gate
	}
	return c.token, c.err
}

func TestSession_Tokens(t *testing.T) {
	s := New("a1", "r1")
	assert.Equal(t, "a1", s.Token())
	assert.Equal(t, "r1", s.RefreshTokenValue())

	s.SetUser(&model.User{Username: "ann"})
	assert.Equal(t, "ann", s.User().Username)

	s.Clear()
	assert.Empty(t, s.Token())
	assert.Nil(t, s.User())
}

func TestSession_Refresh(t *testing.T) {
	s := New("stale", "r1")
	r := &countingRefresher{token: "fresh"}

	token, err := s.Refresh(context.Background(), r, "stale")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, "fresh", s.Token())

	token, err = s.Refresh(context.Background(), r, "stale")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestSession_RefreshSingleFlight(t *testing.T) {
	s := New("stale", "r1")
	r := &countingRefresher{token: "fresh", gate: make(chan struct{}), entered: make(chan struct{})}

	var wg sync.WaitGroup
	results := make([]string, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.Refresh(context.Background(), r, "stale")
	}()
	<-r.entered

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Refresh(context.Background(), r, "stale")
		}(i)
	}
	close(r.gate)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	for _, got := range results {
		assert.Equal(t, "fresh", got)
	}
}

func TestSession_RefreshFailure(t *testing.T) {
	s := New("stale", "r1")
	r := &countingRefresher{err: errors.New("refresh expired")}

	_, err := s.Refresh(context.Background(), r, "stale")
	require.Error(t, err)
	assert.Equal(t, "stale", s.Token())

	_, err = New("", "").Refresh(context.Background(), r, "")
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}
