// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// laneCapacity is the bounded capacity of each worker queue.
// Deep enough that the scheduler rarely stalls on a busy worker while a
// generation is being handed out.
const laneCapacity = 64

// lane is the transport between the scheduler and one worker.
// jobs is produced by the scheduler and consumed by the worker;
// results flows the other way. Both are single-producer single-consumer.
type lane[R any] struct {
	jobs    lfq.SPSC[job[R]]
	results lfq.SPSC[jobResult[R]]
}

// workerPool runs generation jobs on a fixed set of goroutines.
// Job j of a generation always goes to worker j mod len(lanes), and each
// worker consumes its lane in order, so the draws a worker makes from its
// source are reproducible.
type workerPool[R any] struct {
	lanes  []lane[R]
	closed atomix.Uint32
	exec   func(job[R], Source) jobResult[R]
	wg     sync.WaitGroup
}

func newWorkerPool[R any](sources []Source, exec func(job[R], Source) jobResult[R]) *workerPool[R] {
	p := &workerPool[R]{
		lanes: make([]lane[R], len(sources)),
		exec:  exec,
	}
	for i := range p.lanes {
		p.lanes[i].jobs.Init(laneCapacity)
		p.lanes[i].results.Init(laneCapacity)
	}
	p.wg.Add(len(sources))
	for i, src := range sources {
		go p.work(&p.lanes[i], src)
	}
	return p
}

// work consumes jobs until the pool is closed.
func (p *workerPool[R]) work(l *lane[R], src Source) {
	defer p.wg.Done()
	var bo iox.Backoff
	for {
		j, err := l.jobs.Dequeue()
		if err != nil {
			if p.closed.Load() != 0 {
				return
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		r := p.safeExec(j, src)
		for l.results.Enqueue(&r) != nil {
			bo.Wait()
		}
		bo.Reset()
	}
}

// safeExec captures a panic raised by the program body so the scheduler can
// re-raise it on its own goroutine.
func (p *workerPool[R]) safeExec(j job[R], src Source) (r jobResult[R]) {
	defer func() {
		if v := recover(); v != nil {
			r = jobResult[R]{index: j.index, panicked: true, panicVal: v}
		}
	}()
	return p.exec(j, src)
}

// run hands out every job and blocks until all results are back.
// results[i] receives the result of jobs[i]. Sends and receives are
// interleaved on the calling goroutine, backing off when neither side
// makes progress.
func (p *workerPool[R]) run(jobs []job[R], results []jobResult[R]) {
	var bo iox.Backoff
	sent, received := 0, 0
	for received < len(jobs) {
		progress := false
		for sent < len(jobs) {
			if p.lanes[sent%len(p.lanes)].jobs.Enqueue(&jobs[sent]) != nil {
				break
			}
			sent++
			progress = true
		}
		for i := range p.lanes {
			for {
				r, err := p.lanes[i].results.Dequeue()
				if err != nil {
					break
				}
				results[r.index] = r
				received++
				progress = true
			}
		}
		if !progress {
			bo.Wait()
		} else {
			bo.Reset()
		}
	}
}

// close stops the workers and waits for them to exit.
func (p *workerPool[R]) close() {
	p.closed.Add(1)
	p.wg.Wait()
}
