package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/arzzra/astproxy/pkg/ami/command"
)

// Состояния ожидающего действия
const (
	stateWaiting = "waiting"
	stateDone    = "done"

	evComplete = "complete"
)

// Callback получает результат команды ровно один раз
type Callback func(result any, err error)

// pending действие, отправленное в АТС и ожидающее терминального кадра
type pending struct {
	id      string
	verb    string
	cmd     command.Command
	cb      Callback
	started time.Time

	mu    sync.Mutex // сериализует Accept для одного ActionID
	acc   any
	state *fsm.FSM
}

func newPending(id string, cmd command.Command, cb Callback, acc any) *pending {
	return &pending{
		id:      id,
		verb:    cmd.Verb(),
		cmd:     cmd,
		cb:      cb,
		acc:     acc,
		started: time.Now(),
		state: fsm.NewFSM(
			stateWaiting,
			fsm.Events{
				{Name: evComplete, Src: []string{stateWaiting}, Dst: stateDone},
			},
			fsm.Callbacks{},
		),
	}
}

// finish переводит действие в done; false, если оно уже завершено
func (p *pending) finish() bool {
	return p.state.Event(context.Background(), evComplete) == nil
}

func (p *pending) waiting() bool {
	return p.state.Is(stateWaiting)
}

// StoreStats статистика реестра
type StoreStats struct {
	Registered uint64
	Completed  uint64
	Active     int
}

// store потокобезопасный реестр ожидающих действий по ActionID
type store struct {
	mu      sync.RWMutex
	pending map[string]*pending
	stats   StoreStats
}

func newStore() *store {
	return &store{pending: make(map[string]*pending)}
}

func (s *store) add(p *pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[p.id]; exists {
		return false
	}
	s.pending[p.id] = p
	s.stats.Registered++
	return true
}

func (s *store) get(id string) (*pending, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[id]
	return p, ok
}

// remove удаляет именно p; повторное удаление возвращает false
func (s *store) remove(p *pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.pending[p.id]
	if !ok || cur != p {
		return false
	}
	delete(s.pending, p.id)
	s.stats.Completed++
	return true
}

func (s *store) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

func (s *store) snapshot() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Active = len(s.pending)
	return st
}
