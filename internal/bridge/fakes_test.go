package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/skypro1111/voice-bridge-service/internal/protocol"
)

var errLegClosed = errors.New("leg closed")

// callLog records the order of calls across both legs
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type sentMedia struct {
	streamSID string
	payload   []byte
}

type sentMark struct {
	streamSID string
	name      string
}

type fakeDownstream struct {
	log    *callLog
	events chan protocol.DownstreamEvent
	err    error

	mu         sync.Mutex
	media      []sentMedia
	marks      []sentMark
	closeCount int
	closed     bool
}

func newFakeDownstream(log *callLog) *fakeDownstream {
	return &fakeDownstream{log: log, events: make(chan protocol.DownstreamEvent, 16)}
}

func (d *fakeDownstream) Events() <-chan protocol.DownstreamEvent { return d.events }
func (d *fakeDownstream) Err() error                              { return d.err }

func (d *fakeDownstream) SendMedia(streamSID string, mulaw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errLegClosed
	}
	d.media = append(d.media, sentMedia{streamSID: streamSID, payload: mulaw})
	d.log.add("down.media")
	return nil
}

func (d *fakeDownstream) SendMark(streamSID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errLegClosed
	}
	d.marks = append(d.marks, sentMark{streamSID: streamSID, name: name})
	d.log.add("down.mark")
	return nil
}

func (d *fakeDownstream) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	d.closed = true
	d.log.add("down.close")
	return nil
}

func (d *fakeDownstream) Stats() (sent, dropped uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.media) + len(d.marks)), 0
}

func (d *fakeDownstream) snapshot() (media []sentMedia, marks []sentMark, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMedia(nil), d.media...), append([]sentMark(nil), d.marks...), d.closeCount
}

type fakeUpstream struct {
	log    *callLog
	events chan protocol.UpstreamEvent
	err    error

	mu         sync.Mutex
	updates    []protocol.SessionConfig
	appends    [][]byte
	commits    int
	closeCount int
	closed     bool
}

func newFakeUpstream(log *callLog) *fakeUpstream {
	return &fakeUpstream{log: log, events: make(chan protocol.UpstreamEvent, 16)}
}

func (u *fakeUpstream) Events() <-chan protocol.UpstreamEvent { return u.events }
func (u *fakeUpstream) Err() error                            { return u.err }

func (u *fakeUpstream) UpdateSession(cfg protocol.SessionConfig) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates = append(u.updates, cfg)
	u.log.add("up.update")
	return nil
}

func (u *fakeUpstream) AppendAudio(pcm []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errLegClosed
	}
	u.appends = append(u.appends, pcm)
	u.log.add("up.append")
	return nil
}

func (u *fakeUpstream) CommitAudio() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errLegClosed
	}
	u.commits++
	u.log.add("up.commit")
	return nil
}

func (u *fakeUpstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closeCount++
	u.closed = true
	u.log.add("up.close")
	return nil
}

func (u *fakeUpstream) Stats() (sent, dropped uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return uint64(len(u.updates) + len(u.appends) + u.commits), 0
}

func (u *fakeUpstream) counts() (updates, appends, commits, closes int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.updates), len(u.appends), u.commits, u.closeCount
}

// fakeDialer hands out a prepared upstream, optionally after release is closed
type fakeDialer struct {
	up      *fakeUpstream
	err     error
	release chan struct{}

	mu    sync.Mutex
	dials int
}

func (f *fakeDialer) Dial(ctx context.Context) (Upstream, error) {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.up, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}
