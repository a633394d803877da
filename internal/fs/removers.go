package fs

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/threads"
)

// removerRegistry hands out a per-SpaceId rendezvous channel so Remove
// can block until the last Close on a still-open victim file wakes it
// (spec §4.4 "remove while open", scenario S4). Grounded in
// original_source/filesys/file_system.cc's
// currentThread->GetRemoveChannel()->Receive and open_file.cc's
// matching Send on the remover's channel; our threads.Channel already
// carries the single-message rendezvous semantics that protocol needs,
// so the registry's only job is keying one per SpaceId.
type removerRegistry struct {
	mu    sync.Mutex
	sched *threads.Scheduler
	chans map[common.SpaceId]*threads.Channel
}

func newRemoverRegistry(sched *threads.Scheduler) *removerRegistry {
	return &removerRegistry{sched: sched, chans: map[common.SpaceId]*threads.Channel{}}
}

func (r *removerRegistry) channelFor(id common.SpaceId) *threads.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.chans[id]
	if !ok {
		ch = threads.NewChannel(r.sched)
		r.chans[id] = ch
	}
	return ch
}
