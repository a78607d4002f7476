package runtime

import (
	"log"

	"teleportals.ai/internal/persistence/snapshot"
)

// blockSaver writes world snapshots off the loop goroutine, newest first.
type blockSaver struct {
	path string
	log  *log.Logger
	ch   chan blockJob
	done chan struct{}
}

type blockJob struct {
	snap    snapshot.WorldV1
	waiters []chan error
}

func newBlockSaver(path string, logger *log.Logger) *blockSaver {
	b := &blockSaver{
		path: path,
		log:  logger,
		ch:   make(chan blockJob, 1),
		done: make(chan struct{}),
	}
	go b.loop()
	return b
}

// submit must only be called from the loop goroutine. wait, if not nil,
// receives the error of the write that covers s.
func (b *blockSaver) submit(s snapshot.WorldV1, wait chan error) {
	j := blockJob{snap: s}
	select {
	case old := <-b.ch:
		j.waiters = old.waiters
	default:
	}
	if wait != nil {
		j.waiters = append(j.waiters, wait)
	}
	b.ch <- j
}

func (b *blockSaver) loop() {
	defer close(b.done)
	for j := range b.ch {
		err := snapshot.WriteWorld(b.path, j.snap)
		if err != nil {
			b.log.Printf("save blocks: %v", err)
		}
		for _, c := range j.waiters {
			c <- err
		}
	}
}

func (b *blockSaver) close() {
	close(b.ch)
	<-b.done
}
