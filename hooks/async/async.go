// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/casdict"
//	"github.com/unkn0wn-root/casdict/hooks/async"
//	"github.com/unkn0wn-root/casdict/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    RetryEvery:    10, // sample logs: ~every 10th retry
//	    ReadRaceEvery: 1,  // log every read race
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	d, _ := casdict.New[User](casdict.Options[User]{
//	    Backend: be,
//	    Codec:   codec.JSON[User]{},
//	    Hooks:   hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	casdict "github.com/unkn0wn-root/casdict"
)

type Hooks struct {
	inner casdict.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ casdict.Hooks = (*Hooks)(nil)

func New(inner casdict.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) RetryScheduled(op, target string, attempt int, err error) {
	h.try(func() { h.inner.RetryScheduled(op, target, attempt, err) })
}
func (h *Hooks) RetriesExhausted(op, target string, attempts int, err error) {
	h.try(func() { h.inner.RetriesExhausted(op, target, attempts, err) })
}
func (h *Hooks) ReadRaceDetected(target string, attempt int) {
	h.try(func() { h.inner.ReadRaceDetected(target, attempt) })
}
func (h *Hooks) CreateRaceDetected(target string, attempt int) {
	h.try(func() { h.inner.CreateRaceDetected(target, attempt) })
}
func (h *Hooks) CacheRefreshFailed(target string, err error) {
	h.try(func() { h.inner.CacheRefreshFailed(target, err) })
}
func (h *Hooks) VerifyFailed(target string) {
	h.try(func() { h.inner.VerifyFailed(target) })
}
