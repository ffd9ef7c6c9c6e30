package monitor

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
)

// pendingHead holds at most one unprocessed head. A newer head replaces the
// waiting one, so a slow cycle never builds a backlog.
type pendingHead struct {
	mu    sync.Mutex
	head  *types.Header
	ready chan struct{}
}

func newPendingHead() *pendingHead {
	return &pendingHead{ready: make(chan struct{}, 1)}
}

// put stores head and returns the head it displaced, if any.
func (p *pendingHead) put(head *types.Header) *types.Header {
	p.mu.Lock()
	replaced := p.head
	p.head = head
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}
	return replaced
}

func (p *pendingHead) take() *types.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	head := p.head
	p.head = nil
	return head
}
