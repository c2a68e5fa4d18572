package dom

// Op is the kind of DOM mutation observed.
type Op string

const (
	OpInsert  Op = "insert"   // node (subtree root) inserted
	OpRemove  Op = "remove"   // node removed from its parent
	OpText    Op = "text"     // text node data changed
	OpAttr    Op = "attr"     // attribute set or changed
	OpAttrDel Op = "attr_del" // attribute removed
)

// Mutation is a single observed change. Target may be dangling by the time
// a consumer processes the record.
type Mutation struct {
	Op       Op
	Target   NodeID
	Tag      string // element tag for insert/remove
	Name     string // attribute name for attr/attr_del
	Value    string // new value (attribute or text)
	OldValue string
}

// Observe registers a synchronous mutation observer. Observers run after
// the document lock is released; they may read the document but must not
// mutate it.
func (d *Document) Observe(fn func(Mutation)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// Subscribe returns a buffered mutation channel and its cancel. Sends are
// non-blocking: when the buffer is full the oldest pending record is
// dropped, so a slow consumer sees the most recent changes.
func (d *Document) Subscribe(buf int) (<-chan Mutation, func()) {
	if buf <= 0 {
		buf = 256
	}
	ch := make(chan Mutation, buf)
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.mu.Unlock()
	return ch, func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// emit delivers mutations to observers and subscribers. Must be called
// without holding mu.
func (d *Document) emit(muts []Mutation) {
	if len(muts) == 0 {
		return
	}
	d.mu.RLock()
	observers := make([]func(Mutation), len(d.observers))
	copy(observers, d.observers)
	subs := make([]chan Mutation, 0, len(d.subs))
	for _, ch := range d.subs {
		subs = append(subs, ch)
	}
	d.mu.RUnlock()

	for _, m := range muts {
		for _, fn := range observers {
			fn(m)
		}
		for _, ch := range subs {
			select {
			case ch <- m:
			default:
				// Drop the oldest, then deliver the newest.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- m:
				default:
				}
			}
		}
	}
}
