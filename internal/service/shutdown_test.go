package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownAdmit(t *testing.T) {
	s := NewShutdown()
	registered := 0
	register := func() error { registered++; return nil }

	require.NoError(t, s.Admit(false, register))
	assert.False(t, s.Armed())

	require.NoError(t, s.Admit(true, register))
	assert.True(t, s.Armed())

	assert.ErrorIs(t, s.Admit(false, register), ErrDraining)
	assert.ErrorIs(t, s.Admit(true, register), ErrDraining)
	assert.Equal(t, 2, registered)
}

func TestShutdownAdmitRegisterFailureDoesNotArm(t *testing.T) {
	s := NewShutdown()
	err := s.Admit(true, func() error { return ErrDuplicateJob })
	assert.ErrorIs(t, err, ErrDuplicateJob)
	assert.False(t, s.Armed())
}

func TestShutdownTeardownFiresOnce(t *testing.T) {
	s := NewShutdown()
	idle := func() bool { return true }

	assert.False(t, s.BeginTeardown(idle), "not armed")
	require.NoError(t, s.Admit(true, func() error { return nil }))
	assert.False(t, s.BeginTeardown(func() bool { return false }), "jobs still active")

	var fired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginTeardown(idle) {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fired.Load())
	assert.True(t, s.Terminating())

	s.Finish()
	s.Finish()
	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestShutdownAdmitPropagatesError(t *testing.T) {
	s := NewShutdown()
	boom := errors.New("boom")
	assert.ErrorIs(t, s.Admit(false, func() error { return boom }), boom)
}
