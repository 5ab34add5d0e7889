package streams

import (
	"context"
	"sync"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/core/coretest"
)

type fakePub struct {
	id        string
	kind      core.ContentKind
	publisher core.Member
	state     core.PublicationState
	owner     *fakeMember
}

func (p *fakePub) ID() string                    { return p.id }
func (p *fakePub) Publisher() core.Member        { return p.publisher }
func (p *fakePub) ContentKind() core.ContentKind { return p.kind }
func (p *fakePub) State() core.PublicationState  { return p.state }
func (p *fakePub) Enable(context.Context) error {
	p.state = core.PublicationEnabled
	return nil
}
func (p *fakePub) Disable(context.Context) error {
	p.state = core.PublicationDisabled
	return nil
}
func (p *fakePub) Cancel(context.Context) error {
	p.state = core.PublicationCanceled
	if p.owner != nil {
		for i, x := range p.owner.pubs {
			if x == core.Publication(p) {
				p.owner.pubs = append(p.owner.pubs[:i], p.owner.pubs[i+1:]...)
				break
			}
		}
	}
	return nil
}

type fakeSub struct {
	id, pubID string
	stream    core.MediaStream
	owner     *fakeLocal
}

func (s *fakeSub) ID() string               { return s.id }
func (s *fakeSub) PublicationID() string    { return s.pubID }
func (s *fakeSub) Stream() core.MediaStream { return s.stream }
func (s *fakeSub) Cancel(context.Context) error {
	s.owner.dropSub(s)
	return nil
}

type fakeMember struct {
	id       string
	metadata string
	local    bool
	pubs     []core.Publication
}

func (m *fakeMember) ID() string                        { return m.id }
func (m *fakeMember) Metadata() string                  { return m.metadata }
func (m *fakeMember) IsLocal() bool                     { return m.local }
func (m *fakeMember) Publications() []core.Publication { return m.pubs }

// fakeLocal fails Subscribe with the queued errors, one per call, then
// succeeds. raced shows up in Subscriptions once the last queued error has
// been returned, as if another handler had subscribed meanwhile.
type fakeLocal struct {
	fakeMember

	mu             sync.Mutex
	subscribeErrs  []error
	raced          *fakeSub
	subscribeCalls int
	subs           []core.Subscription
	kinds          map[string]core.ContentKind
}

func newFakeLocal(id string) *fakeLocal {
	return &fakeLocal{
		fakeMember: fakeMember{id: id, metadata: `{"userName":"me"}`, local: true},
		kinds:      make(map[string]core.ContentKind),
	}
}

func (m *fakeLocal) Publish(_ context.Context, stream core.MediaStream, _ core.PublicationOptions) (core.Publication, error) {
	p := &fakePub{id: "pub-" + stream.ID(), kind: stream.Kind(), publisher: m, state: core.PublicationEnabled, owner: &m.fakeMember}
	m.pubs = append(m.pubs, p)
	return p, nil
}

func (m *fakeLocal) Subscribe(_ context.Context, pubID string, _ core.SubscriptionOptions) (core.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCalls++
	if len(m.subscribeErrs) > 0 {
		err := m.subscribeErrs[0]
		m.subscribeErrs = m.subscribeErrs[1:]
		if len(m.subscribeErrs) == 0 && m.raced != nil {
			m.subs = append(m.subs, m.raced)
			m.raced = nil
		}
		if err != nil {
			return nil, err
		}
	}
	kind := m.kinds[pubID]
	sub := &fakeSub{id: "sub-" + pubID, pubID: pubID, stream: coretest.NewStream(kind), owner: m}
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *fakeLocal) Subscriptions() []core.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Subscription(nil), m.subs...)
}

func (m *fakeLocal) dropSub(s *fakeSub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.subs {
		if x == s {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

func (m *fakeLocal) Leave(context.Context) error { return nil }

func (m *fakeLocal) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeCalls
}

// remotePub creates a publication of a remote member known to me.
func remotePub(me *fakeLocal, publisher *fakeMember, id string, kind core.ContentKind) *fakePub {
	p := &fakePub{id: id, kind: kind, publisher: publisher, state: core.PublicationEnabled, owner: publisher}
	publisher.pubs = append(publisher.pubs, p)
	me.kinds[id] = kind
	return p
}

type fixedSource struct{ me core.LocalMember }

func (s fixedSource) Me() (core.LocalMember, bool) { return s.me, s.me != nil }
