package server

import "sync"

// Spawner decides how connection workers are run. Whatever the strategy,
// each task owns its connection exclusively.
type Spawner interface {
	Go(task func())
	Wait()
}

// NewSpawner returns an unbounded spawner for max <= 0, otherwise one that
// runs at most max tasks at a time.
func NewSpawner(max int) Spawner {
	if max <= 0 {
		return &unboundedSpawner{}
	}
	return &boundedSpawner{slots: make(chan struct{}, max)}
}

type unboundedSpawner struct {
	wg sync.WaitGroup
}

func (u *unboundedSpawner) Go(task func()) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		task()
	}()
}

func (u *unboundedSpawner) Wait() {
	u.wg.Wait()
}

// boundedSpawner blocks Go until a slot is free, which in turn stops the
// accept loop from taking more connections.
type boundedSpawner struct {
	wg    sync.WaitGroup
	slots chan struct{}
}

func (b *boundedSpawner) Go(task func()) {
	b.slots <- struct{}{}
	b.wg.Add(1)
	go func() {
		defer func() {
			<-b.slots
			b.wg.Done()
		}()
		task()
	}()
}

func (b *boundedSpawner) Wait() {
	b.wg.Wait()
}
