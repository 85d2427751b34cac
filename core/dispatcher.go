package convai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultDispatchQueueSize = 64

type task struct {
	name     string
	run      func()
	queuedAt time.Time
	// stop ends the loop once every earlier control task has run.
	stop bool
}

// dispatcher runs every piece of session state mutation and every observer
// notification on one goroutine.
//
// Work from the transport and from finished tools goes through the bounded
// queue so a flood of inbound events pushes back on the reader. Work from the
// public API and from observers goes through the control list, which never
// blocks; an observer calling back into the session therefore cannot deadlock
// the loop it runs on.
type dispatcher struct {
	queue chan task

	controlMu sync.Mutex
	control   []task
	wake      chan struct{}

	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = defaultDispatchQueueSize
	}
	return &dispatcher{
		queue:   make(chan task, queueSize),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (d *dispatcher) start() {
	d.startOnce.Do(func() {
		d.controlMu.Lock()
		d.started = true
		d.controlMu.Unlock()
		go d.run()
	})
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		for _, t := range d.takeControl() {
			if t.stop {
				d.close()
				return
			}
			d.runTask(t)
		}

		select {
		case <-d.closeCh:
			return
		case <-d.wake:
		case t := <-d.queue:
			if d.isClosed() {
				return
			}
			d.runTask(t)
		}
	}
}

func (d *dispatcher) takeControl() []task {
	d.controlMu.Lock()
	defer d.controlMu.Unlock()
	tasks := d.control
	d.control = nil
	return tasks
}

func (d *dispatcher) runTask(t task) {
	dispatchWait.Record(context.Background(), time.Since(t.queuedAt).Seconds(),
		metric.WithAttributes(attribute.String("task", t.name)))

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("session task panicked", "task", t.name, "panic", fmt.Sprint(recovered))
		}
	}()
	t.run()
}

// post queues fn behind earlier transport and tool work, blocking while the
// queue is full. It reports false once the dispatcher is closed. It must not
// be called from the loop itself.
func (d *dispatcher) post(name string, fn func()) bool {
	if d.isClosed() {
		return false
	}

	select {
	case <-d.closeCh:
		return false
	case d.queue <- task{name: name, run: fn, queuedAt: time.Now()}:
		return true
	}
}

// postControl queues fn without blocking. Control tasks run in the order they
// were posted and ahead of queued transport work.
func (d *dispatcher) postControl(name string, fn func()) bool {
	return d.appendControl(task{name: name, run: fn, queuedAt: time.Now()})
}

// drainAndClose lets every control task posted so far run, then stops the
// loop. Queued transport work that has not run yet is dropped.
func (d *dispatcher) drainAndClose() {
	d.controlMu.Lock()
	started := d.started
	d.controlMu.Unlock()
	if !started || !d.appendControl(task{name: "stop", stop: true, queuedAt: time.Now()}) {
		d.close()
	}
}

func (d *dispatcher) appendControl(t task) bool {
	d.controlMu.Lock()
	if d.isClosed() {
		d.controlMu.Unlock()
		return false
	}
	d.control = append(d.control, t)
	d.controlMu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) close() {
	d.closeOnce.Do(func() { close(d.closeCh) })
}

func (d *dispatcher) isClosed() bool {
	select {
	case <-d.closeCh:
		return true
	default:
		return false
	}
}

// finished is closed when the loop has exited. A dispatcher that was never
// started is finished as soon as it is closed.
func (d *dispatcher) finished() <-chan struct{} {
	d.controlMu.Lock()
	started := d.started
	d.controlMu.Unlock()
	if started {
		return d.done
	}
	return d.closeCh
}
