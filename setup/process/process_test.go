package process

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDegraded(t *testing.T) {
	p := NewProcessContext()
	assert.False(t, p.IsDegraded())
	p.Degraded(errors.New("sync failing"))
	p.Degraded(errors.New("sync failing"))
	assert.True(t, p.IsDegraded())
}

func TestShutdownWaitsForComponents(t *testing.T) {
	p := NewProcessContext()
	p.ComponentStarted()
	finished := make(chan struct{})
	go func() {
		<-p.WaitForShutdown()
		p.ComponentFinished()
	}()
	go func() {
		p.WaitForComponentsToFinish()
		close(finished)
	}()
	p.Shutdown()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("components did not finish")
	}
	assert.Error(t, p.Context().Err())
}
