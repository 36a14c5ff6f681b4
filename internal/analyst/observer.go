package analyst

import (
	"context"
	"sync"

	"github.com/sqlanalyst/sqlanalyst/internal/toolcall"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

// QueryObserver is called after every executed tool call, successful or not,
// in execution order.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, call toolcall.Call, result warehouse.Result)
}

type QueryObserverFunc func(ctx context.Context, call toolcall.Call, result warehouse.Result)

func (f QueryObserverFunc) ObserveQuery(ctx context.Context, call toolcall.Call, result warehouse.Result) {
	f(ctx, call, result)
}

// LastSuccess remembers the most recent successful query of a question.
type LastSuccess struct {
	mu     sync.Mutex
	call   toolcall.Call
	result warehouse.Result
	ok     bool
}

func (l *LastSuccess) ObserveQuery(_ context.Context, call toolcall.Call, result warehouse.Result) {
	if result.Failed() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.call = call
	l.result = result
	l.ok = true
}

func (l *LastSuccess) Get() (toolcall.Call, warehouse.Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.call, l.result, l.ok
}
