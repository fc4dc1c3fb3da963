package session

import "sync"

// PathNavigator is an in-process Navigator that records where it was sent.
type PathNavigator struct {
	mu      sync.Mutex
	current string
	history []string
}

func NewPathNavigator(start string) *PathNavigator {
	return &PathNavigator{current: start}
}

func (n *PathNavigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *PathNavigator) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if path == n.current {
		return
	}
	n.current = path
	n.history = append(n.history, path)
}

// History lists every path navigated to, oldest first.
func (n *PathNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}
