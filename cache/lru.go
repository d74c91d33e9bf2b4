package cache

// lruNode is an element of the intrusive LRU list.
type lruNode[K comparable] struct {
	key  K
	prev *lruNode[K]
	next *lruNode[K]
}

// lruList is a doubly-linked list ordered from most to least recently
// used. It is not safe for concurrent use; callers hold their own lock.
type lruList[K comparable] struct {
	head *lruNode[K] // most recently used
	tail *lruNode[K] // least recently used
	len  int
}

func newLRUList[K comparable]() *lruList[K] {
	return &lruList[K]{}
}

// Len returns the number of nodes in the list.
func (l *lruList[K]) Len() int { return l.len }

// PushFront inserts a new node at the most-recently-used position.
func (l *lruList[K]) PushFront(key K) *lruNode[K] {
	n := &lruNode[K]{key: key}
	l.attachFront(n)
	l.len++
	return n
}

// MoveToFront promotes a node to the most-recently-used position.
func (l *lruList[K]) MoveToFront(n *lruNode[K]) {
	if l.head == n {
		return
	}
	l.detach(n)
	l.attachFront(n)
}

// RemoveOldest removes and returns the least-recently-used key.
func (l *lruList[K]) RemoveOldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	n := l.tail
	l.detach(n)
	l.len--
	return n.key, true
}

// Remove unlinks a node from the list.
func (l *lruList[K]) Remove(n *lruNode[K]) {
	l.detach(n)
	l.len--
}

func (l *lruList[K]) attachFront(n *lruNode[K]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lruList[K]) detach(n *lruNode[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}
