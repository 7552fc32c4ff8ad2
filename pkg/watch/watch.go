// Package watch implements the L5 notification subsystem spec §4.5
// describes: per-key and global handlers over a mutable RW store, with
// serial per-handler delivery. Every notified transition is queued and
// delivered in order; one that leaves a key's value unchanged is not
// delivered.
package watch

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/logctx"
)

// DiffKind discriminates a single delivered state transition.
type DiffKind int

const (
	Added DiffKind = iota
	Removed
	Updated
)

// Diff is what a handler receives: the key, what kind of transition
// happened, and the old/new raw values (nil on the side that doesn't
// apply).
type Diff struct {
	Key string
	Kind DiffKind
	Old  []byte
	New  []byte
}

// Handler is invoked at most once at a time per registration (spec §4.5
// ordering contract).
type Handler func(ctx context.Context, d Diff)

// Handle is the opaque token returned at registration; pass it to
// Unwatch to cancel.
type Handle struct{ id uuid.UUID }

type job struct {
	key      string
	newValue []byte
	present  bool
	pre      *Diff
}

type subscription struct {
	id      uuid.UUID
	key     string // "" means global (any key)
	handler Handler

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []job
	closed      bool
	last        map[string][]byte
	lastPresent map[string]bool
	done        chan struct{}
}

func newSubscription(id uuid.UUID, key string, h Handler) *subscription {
	s := &subscription{
		id:          id,
		key:         key,
		handler:     h,
		last:        map[string][]byte{},
		lastPresent: map[string]bool{},
		done:        make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscription) enqueue(j job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, j)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		var d *Diff
		if j.pre != nil {
			d = j.pre
		} else {
			old, hadOld := s.last[j.key], s.lastPresent[j.key]
			d = computeDiff(j.key, old, hadOld, j.newValue, j.present)
			s.last[j.key] = j.newValue
			s.lastPresent[j.key] = j.present
		}
		if d != nil {
			s.deliver(ctx, *d)
		}
	}
}

func (s *subscription) deliver(ctx context.Context, d Diff) {
	defer func() {
		if r := recover(); r != nil {
			logctx.WatcherPanic(d.Key, r)
		}
	}()
	s.handler(ctx, d)
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.done
}

func computeDiff(key string, old []byte, hadOld bool, newValue []byte, present bool) *Diff {
	switch {
	case !hadOld && !present:
		return nil
	case !hadOld && present:
		return &Diff{Key: key, Kind: Added, New: newValue}
	case hadOld && !present:
		return &Diff{Key: key, Kind: Removed, Old: old}
	default:
		if bytes.Equal(old, newValue) {
			return nil
		}
		return &Diff{Key: key, Kind: Updated, Old: old, New: newValue}
	}
}

// State is the watch state for one mutable RW store (spec §4.5). It
// implements kernel.Watcher so backends can be wired to it via
// SetNotifier.
type State struct {
	store kernel.RW
	ctx   context.Context

	mu     sync.Mutex
	global map[uuid.UUID]*subscription
	perKey map[string]map[uuid.UUID]*subscription

	locks *KeyLockManager
}

// NewState builds a watch state bound to store and attaches itself as
// store's notifier if the backend supports one. deliveryCtx is the
// context passed to every handler invocation (handlers run on a
// dedicated goroutine per subscription, outside the caller's request
// scope, so it cannot simply borrow the registering caller's ctx).
func NewState(store kernel.RW, deliveryCtx context.Context) *State {
	if deliveryCtx == nil {
		deliveryCtx = context.Background()
	}
	s := &State{
		store:  store,
		ctx:    deliveryCtx,
		global: map[uuid.UUID]*subscription{},
		perKey: map[string]map[uuid.UUID]*subscription{},
		locks:  NewKeyLockManager(),
	}
	if setter, ok := store.(interface{ SetNotifier(kernel.Watcher) }); ok {
		setter.SetNotifier(s)
	}
	return s
}

// Locks exposes the per-key lock manager layers above (branch writes,
// commit construction) use to serialise same-key mutations without
// blocking unrelated keys (spec §4.5).
func (s *State) Locks() *KeyLockManager { return s.locks }

// Watch installs a global handler, invoked for every key's transitions
// (spec §4.5 `watch`). When init is non-nil, a diff for every current
// binding that differs from it (in sorted key order), followed by a
// Removed diff for every init key with no current binding (also sorted),
// is queued before Watch returns; these are delivered asynchronously,
// ahead of any later transition.
func (s *State) Watch(ctx context.Context, init map[string][]byte, handler Handler) (Handle, error) {
	id := uuid.New()
	sub := newSubscription(id, "", handler)
	if err := s.seed(ctx, sub, "", init); err != nil {
		return Handle{}, err
	}
	s.mu.Lock()
	s.global[id] = sub
	s.mu.Unlock()
	go sub.run(s.ctx)
	return Handle{id: id}, nil
}

// WatchKey installs a key-scoped handler (spec §4.5 `watch_key`).
func (s *State) WatchKey(ctx context.Context, key string, init []byte, initPresent bool, handler Handler) (Handle, error) {
	if key == "" {
		return Handle{}, errs.Invalid("watch: empty key rejected")
	}
	id := uuid.New()
	sub := newSubscription(id, key, handler)
	var initMap map[string][]byte
	if initPresent {
		initMap = map[string][]byte{key: init}
	}
	if err := s.seed(ctx, sub, key, initMap); err != nil {
		return Handle{}, err
	}
	s.mu.Lock()
	if s.perKey[key] == nil {
		s.perKey[key] = map[uuid.UUID]*subscription{}
	}
	s.perKey[key][id] = sub
	s.mu.Unlock()
	go sub.run(s.ctx)
	return Handle{id: id}, nil
}

// Unwatch cancels h. Already-enqueued deliveries for it still run, but
// finish before Unwatch returns (spec §4.5).
func (s *State) Unwatch(h Handle) {
	s.mu.Lock()
	sub, ok := s.global[h.id]
	if ok {
		delete(s.global, h.id)
	} else {
		for key, subs := range s.perKey {
			if found, ok := subs[h.id]; ok {
				sub = found
				delete(subs, h.id)
				if len(subs) == 0 {
					delete(s.perKey, key)
				}
				break
			}
		}
	}
	s.mu.Unlock()
	if sub != nil {
		sub.stop()
	}
}

// Notify implements kernel.Watcher: the backend calls this on every
// state transition of key (spec §4.5 `notify`).
func (s *State) Notify(key string, newValue []byte, present bool) {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.global)+1)
	for _, sub := range s.global {
		targets = append(targets, sub)
	}
	for _, sub := range s.perKey[key] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(job{key: key, newValue: newValue, present: present})
	}
}

// seed always captures sub's baseline (current bindings, filtered to
// onlyKey when non-empty) so a later real transition diffs against
// reality rather than against "never seen". When init is non-nil it
// additionally diffs the baseline against init and queues the result as
// pre-computed Diffs (spec §4.5: "on first activation, for each current
// binding that differs from init, the handler is invoked with the
// appropriate diff").
func (s *State) seed(ctx context.Context, sub *subscription, onlyKey string, init map[string][]byte) error {
	keys, err := s.store.List(ctx)
	if err != nil {
		return errs.WrapBackend(err, "watch: seed list")
	}

	seen := map[string]bool{}
	var ordered []string
	for _, k := range keys {
		if onlyKey != "" && k != onlyKey {
			continue
		}
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	for _, k := range ordered {
		v, ok, err := s.store.Find(ctx, k)
		if err != nil {
			return errs.WrapBackend(err, "watch: seed find")
		}
		if !ok {
			continue
		}
		seen[k] = true
		sub.last[k] = v
		sub.lastPresent[k] = true
		if init == nil {
			continue
		}
		if iv, iok := init[k]; !iok || !bytes.Equal(iv, v) {
			d := &Diff{Key: k, Kind: Added, New: v}
			if iok {
				d.Kind, d.Old = Updated, iv
			}
			sub.queue = append(sub.queue, job{pre: d})
		}
	}

	if init == nil {
		return nil
	}
	var initKeys []string
	for k := range init {
		if onlyKey != "" && k != onlyKey {
			continue
		}
		if seen[k] {
			continue
		}
		initKeys = append(initKeys, k)
	}
	sort.Strings(initKeys)
	for _, k := range initKeys {
		sub.last[k] = nil
		sub.lastPresent[k] = false
		sub.queue = append(sub.queue, job{pre: &Diff{Key: k, Kind: Removed, Old: init[k]}})
	}
	return nil
}
