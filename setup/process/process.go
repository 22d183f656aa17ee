// Copyright 2026 The Circles Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

type contextKey string

// ProcessContext ties together the long-running components of a circles
// process: the sync loop, the feed API and anything started by them.
type ProcessContext struct {
	wg       *sync.WaitGroup    // used to wait for components to shutdown
	ctx      context.Context    // cancelled when Shutdown is called
	shutdown context.CancelFunc // shut down circles
	degraded atomic.Bool
	reasons  sync.Map // reason -> struct{}
}

func NewProcessContext() *ProcessContext {
	ctx, shutdown := context.WithCancel(context.Background())
	return &ProcessContext{
		ctx:      ctx,
		shutdown: shutdown,
		wg:       &sync.WaitGroup{},
	}
}

func (b *ProcessContext) Context() context.Context {
	return context.WithValue(b.ctx, contextKey("scope"), "process")
}

func (b *ProcessContext) ComponentStarted() {
	b.wg.Add(1)
}

func (b *ProcessContext) ComponentFinished() {
	b.wg.Done()
}

func (b *ProcessContext) Shutdown() {
	b.shutdown()
}

func (b *ProcessContext) WaitForShutdown() <-chan struct{} {
	return b.ctx.Done()
}

func (b *ProcessContext) WaitForComponentsToFinish() {
	b.wg.Wait()
}

// Degraded marks the process as degraded. Only the first call for a given
// reason is logged and reported.
func (b *ProcessContext) Degraded(reason error) {
	if _, seen := b.reasons.LoadOrStore(reason.Error(), struct{}{}); seen {
		return
	}
	b.degraded.Store(true)
	logrus.WithError(reason).Warn("Circles is running in a degraded state")
	sentry.CaptureException(fmt.Errorf("process is running in a degraded state: %w", reason))
}

func (b *ProcessContext) IsDegraded() bool {
	return b.degraded.Load()
}
