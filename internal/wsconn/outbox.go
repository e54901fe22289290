package wsconn

import "sync"

// outFrame is a serialized message waiting for the writer
type outFrame struct {
	data      []byte
	droppable bool
}

// outbox is a bounded FIFO of outbound frames. When full, the oldest
// droppable frame is evicted; frames that are not droppable are always kept.
type outbox struct {
	mu     sync.Mutex
	frames []outFrame
	limit  int
	ready  chan struct{}
	closed bool
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{
		frames: make([]outFrame, 0, limit),
		limit:  limit,
		ready:  make(chan struct{}, 1),
	}
}

// push enqueues a frame and reports whether a frame was dropped to make room
func (o *outbox) push(f outFrame) (dropped bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false, ErrClosed
	}

	if len(o.frames) >= o.limit {
		idx := -1
		for i := range o.frames {
			if o.frames[i].droppable {
				idx = i
				break
			}
		}

		switch {
		case idx >= 0:
			o.frames = append(o.frames[:idx], o.frames[idx+1:]...)
			dropped = true
		case f.droppable:
			// Queue holds only control frames; the new audio frame is the oldest droppable
			return true, nil
		}
	}

	o.frames = append(o.frames, f)
	o.signal()
	return dropped, nil
}

// take removes and returns every queued frame along with the closed flag
func (o *outbox) take() ([]outFrame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	frames := o.frames
	o.frames = make([]outFrame, 0, o.limit)
	return frames, o.closed
}

// close stops accepting frames; frames already queued remain for the writer
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		o.signal()
	}
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
