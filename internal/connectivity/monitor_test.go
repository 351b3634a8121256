package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type recordingListener struct {
	mu     sync.Mutex
	states []bool
}

func (l *recordingListener) SetOnline(online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, online)
}

func (l *recordingListener) last() (bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return false, false
	}
	return l.states[len(l.states)-1], true
}

func TestProbe(t *testing.T) {
	p := &fakePinger{}
	l := &recordingListener{}
	m := NewMonitor(p, l, time.Second, time.Second)

	assert.True(t, m.Probe(context.Background()))
	p.set(errors.New("connection refused"))
	assert.False(t, m.Probe(context.Background()))

	assert.Equal(t, []bool{true, false}, l.states)
}

func TestRun_FollowsRemote(t *testing.T) {
	p := &fakePinger{err: errors.New("down")}
	l := &recordingListener{}
	m := NewMonitor(p, l, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		v, ok := l.last()
		return ok && !v
	}, time.Second, time.Millisecond)

	p.set(nil)
	require.Eventually(t, func() bool {
		v, ok := l.last()
		return ok && v
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_Disabled(t *testing.T) {
	l := &recordingListener{}
	m := NewMonitor(&fakePinger{}, l, 0, 0)

	require.NoError(t, m.Run(context.Background()))
	_, ok := l.last()
	assert.False(t, ok)
}
