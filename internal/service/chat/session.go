package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/domain"
	"storefront/internal/realtime"
)

var ErrSessionClosed = errors.New("chat session closed")

type subKind int

const (
	subMessages subKind = iota
	subUpdates
)

// Session is one client's view of the chat: its subscription table keyed by
// room id and a cache of the messages it has seen. Push and poll deliveries
// both go through apply, so a message reaches the callback at most once.
type Session struct {
	svc   *Service
	actor Actor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	messages map[string]*subscription
	updates  map[string]*subscription
	cache    map[string]*roomCache
}

type roomCache struct {
	byID  map[string]domain.ChatMessage
	order []string
}

type subscription struct {
	kind   subKind
	roomID string
	feed   realtime.Subscription

	onMessage func(domain.ChatMessage)
	onUpdate  func(domain.ChatRoom)

	polled chan []domain.ChatMessage
	rooms  chan domain.ChatRoom

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}

	lastUpdate time.Time
}

func newSession(svc *Service, actor Actor) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		svc:      svc,
		actor:    actor,
		ctx:      ctx,
		cancel:   cancel,
		messages: make(map[string]*subscription),
		updates:  make(map[string]*subscription),
		cache:    make(map[string]*roomCache),
	}
}

// SubscribeToRoomMessages calls fn once per new message inserted in the room.
// Subscribing again to the same room replaces the previous callback.
func (s *Session) SubscribeToRoomMessages(ctx context.Context, roomID string, fn func(domain.ChatMessage)) error {
	if _, err := s.svc.GetRoom(ctx, s.actor, roomID); err != nil {
		return err
	}
	sub := &subscription{kind: subMessages, roomID: roomID, onMessage: fn}
	return s.attach(ctx, s.messages, sub)
}

// SubscribeToRoomUpdates calls fn once per change of the room row.
func (s *Session) SubscribeToRoomUpdates(ctx context.Context, roomID string, fn func(domain.ChatRoom)) error {
	room, err := s.svc.GetRoom(ctx, s.actor, roomID)
	if err != nil {
		return err
	}
	sub := &subscription{kind: subUpdates, roomID: roomID, onUpdate: fn, lastUpdate: room.UpdatedAt}
	return s.attach(ctx, s.updates, sub)
}

func (s *Session) attach(ctx context.Context, table map[string]*subscription, sub *subscription) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prior := table[sub.roomID]
	delete(table, sub.roomID)
	s.mu.Unlock()
	prior.stop()

	feed, err := s.svc.broker.Subscribe(ctx, realtime.RoomChannel(sub.roomID))
	if err != nil {
		return err
	}
	sub.feed = feed
	sub.ctx, sub.cancel = context.WithCancel(s.ctx)
	sub.done = make(chan struct{})
	sub.polled = make(chan []domain.ChatMessage, 4)
	sub.rooms = make(chan domain.ChatRoom, 4)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.stop()
		return ErrSessionClosed
	}
	displaced := table[sub.roomID]
	table[sub.roomID] = sub
	s.mu.Unlock()
	displaced.stop()

	go s.run(sub)
	return nil
}

// Unsubscribe tears down both subscriptions of a room. It is safe to call
// more than once and from inside a callback.
func (s *Session) Unsubscribe(roomID string) {
	s.mu.Lock()
	msgs := s.messages[roomID]
	upd := s.updates[roomID]
	delete(s.messages, roomID)
	delete(s.updates, roomID)
	s.mu.Unlock()

	msgs.stop()
	upd.stop()
}

// Close unsubscribes from every room and stops polling.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.messages)+len(s.updates))
	for _, sub := range s.messages {
		subs = append(subs, sub)
	}
	for _, sub := range s.updates {
		subs = append(subs, sub)
	}
	s.messages = map[string]*subscription{}
	s.updates = map[string]*subscription{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	s.cancel()
}

// Subscriptions reports how many rooms have an active message subscription.
func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Messages returns the cached messages of a room, oldest first.
func (s *Session) Messages(roomID string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cache[roomID]
	if c == nil {
		return []domain.ChatMessage{}
	}
	out := make([]domain.ChatMessage, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Poll re-reads every subscribed room on each tick until ctx is done or the
// session closes. It backs up push delivery, not replaces it.
func (s *Session) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce fetches the current messages and room row of every subscribed
// room and hands them to the subscription for de-duplicated delivery.
func (s *Session) PollOnce(ctx context.Context) {
	s.mu.Lock()
	msgSubs := make([]*subscription, 0, len(s.messages))
	for _, sub := range s.messages {
		msgSubs = append(msgSubs, sub)
	}
	updSubs := make([]*subscription, 0, len(s.updates))
	for _, sub := range s.updates {
		updSubs = append(updSubs, sub)
	}
	s.mu.Unlock()

	for _, sub := range msgSubs {
		msgs, err := s.svc.GetRoomMessages(ctx, s.actor, sub.roomID)
		if err != nil || len(msgs) == 0 {
			continue
		}
		select {
		case sub.polled <- msgs:
		case <-sub.done:
		case <-ctx.Done():
			return
		}
	}
	for _, sub := range updSubs {
		room, err := s.svc.repo.GetRoom(ctx, sub.roomID)
		if err != nil {
			continue
		}
		select {
		case sub.rooms <- *room:
		case <-sub.done:
		case <-ctx.Done():
			return
		}
	}
}

// run is the single delivery goroutine of a subscription, so callbacks for
// one subscription never run concurrently.
func (s *Session) run(sub *subscription) {
	feed := sub.feed.C()
	for {
		select {
		case <-sub.done:
			return
		case payload, ok := <-feed:
			if !ok {
				return
			}
			s.handlePush(sub, payload)
		case batch := <-sub.polled:
			for _, msg := range batch {
				s.deliverMessage(sub, msg)
			}
		case room := <-sub.rooms:
			s.deliverRoom(sub, room)
		}
	}
}

func (s *Session) handlePush(sub *subscription, payload []byte) {
	e, err := realtime.DecodeEvent(payload)
	if err != nil {
		s.svc.logger.Printf("chat session: decode event room_id=%s error=%v", sub.roomID, err)
		return
	}
	switch sub.kind {
	case subMessages:
		if e.Event != realtime.EventInsert || e.Table != realtime.TableMessages || e.RoomID != sub.roomID {
			return
		}
		// The event is bare; read the full row with its sender identity.
		msg, err := s.svc.repo.GetMessage(sub.ctx, e.ID)
		if err != nil {
			s.svc.logger.Printf("chat session: refetch message id=%s error=%v", e.ID, err)
			return
		}
		s.deliverMessage(sub, *msg)
	case subUpdates:
		if e.Event != realtime.EventUpdate || e.Table != realtime.TableRooms || e.ID != sub.roomID {
			return
		}
		room, err := s.svc.repo.GetRoom(sub.ctx, sub.roomID)
		if err != nil {
			s.svc.logger.Printf("chat session: refetch room id=%s error=%v", sub.roomID, err)
			return
		}
		s.deliverRoom(sub, *room)
	}
}

func (s *Session) deliverMessage(sub *subscription, msg domain.ChatMessage) {
	if msg.RoomID != sub.roomID {
		return
	}
	if !s.apply(msg) || sub.stopped.Load() {
		return
	}
	sub.onMessage(msg)
}

func (s *Session) deliverRoom(sub *subscription, room domain.ChatRoom) {
	if !room.UpdatedAt.After(sub.lastUpdate) && !sub.lastUpdate.IsZero() {
		return
	}
	sub.lastUpdate = room.UpdatedAt
	if sub.stopped.Load() {
		return
	}
	sub.onUpdate(room)
}

// apply records msg in the cache and reports whether it was new. Known
// messages are refreshed in place (read flags change) without reporting.
func (s *Session) apply(msg domain.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cache[msg.RoomID]
	if c == nil {
		c = &roomCache{byID: make(map[string]domain.ChatMessage)}
		s.cache[msg.RoomID] = c
	}
	if _, seen := c.byID[msg.ID]; seen {
		c.byID[msg.ID] = msg
		return false
	}
	c.byID[msg.ID] = msg
	c.order = append(c.order, msg.ID)
	sort.SliceStable(c.order, func(i, j int) bool {
		return c.byID[c.order[i]].CreatedAt.Before(c.byID[c.order[j]].CreatedAt)
	})
	return true
}

func (sub *subscription) stop() {
	if sub == nil {
		return
	}
	sub.stopped.Store(true)
	sub.once.Do(func() {
		if sub.done != nil {
			close(sub.done)
		}
		if sub.cancel != nil {
			sub.cancel()
		}
		if sub.feed != nil {
			_ = sub.feed.Close()
		}
	})
}
