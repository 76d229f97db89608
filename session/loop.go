package session

import (
	"sync"
	"time"
)

// loop runs closures one at a time on a single goroutine. All protocol state
// of a Session is touched only from inside loop tasks. User hooks run in order
// on a second goroutine so they may call back into the Session.
type loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	hookMu    sync.Mutex
	hooks     []func()
	hookReady chan struct{}
}

func newLoop() *loop {
	l := &loop{
		tasks:     make(chan func(), 256),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		hookReady: make(chan struct{}, 1),
	}
	go l.run()
	go l.runHooks()
	return l
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			return
		}
	}
}

// post queues fn; it returns false once the loop is stopped
func (l *loop) post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// call queues fn and waits for it to run. Must not be used from a loop task.
func (l *loop) call(fn func()) bool {
	ran := make(chan struct{})
	if !l.post(func() {
		fn()
		close(ran)
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.quit:
		return false
	}
}

// notify queues a user hook. It never blocks, so loop tasks use it to hand
// callbacks off the loop goroutine.
func (l *loop) notify(fn func()) {
	l.hookMu.Lock()
	l.hooks = append(l.hooks, fn)
	l.hookMu.Unlock()
	select {
	case l.hookReady <- struct{}{}:
	default:
	}
}

func (l *loop) runHooks() {
	for {
		select {
		case <-l.hookReady:
		case <-l.quit:
			return
		}
		for {
			l.hookMu.Lock()
			if len(l.hooks) == 0 {
				l.hookMu.Unlock()
				break
			}
			fn := l.hooks[0]
			l.hooks[0] = nil
			l.hooks = l.hooks[1:]
			l.hookMu.Unlock()
			fn()
		}
	}
}

// after posts fn to the loop once d has elapsed
func (l *loop) after(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.post(fn) })
}

func (l *loop) stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
