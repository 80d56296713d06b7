// Package connection implements the target side of deployment connections:
// a subscriber that watches a deployment's mailbox and drives input
// re-resolution on the instances that depend on it.
package connection

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivelab/comb/pkg/mailbox"
)

// UpdateFunc is invoked when a genuinely new update reaches the head of the
// mailbox. It receives only the newest update; a burst of writes collapses
// into one invocation carrying the latest.
type UpdateFunc func(update *mailbox.ConnectionUpdate)

// ValueFunc is invoked for every resolved value present in a snapshot. It
// fires once per entry per snapshot, so it must be idempotent.
type ValueFunc func(elementID, inputPath string, value json.RawMessage)

// Options configures a subscriber.
type Options struct {
	// Enabled gates the whole subscription. When false the subscriber is
	// inert: Subscribe succeeds but observes nothing.
	Enabled bool

	// OnUpdate receives new-head updates. Optional.
	OnUpdate UpdateFunc

	// OnValue receives resolved values on every snapshot. Optional.
	OnValue ValueFunc

	// ResyncInterval bounds how stale a subscriber can get when an
	// announcement is missed (Redis Pub/Sub is at-most-once). Zero means
	// DefaultResyncInterval.
	ResyncInterval time.Duration
}

// DefaultResyncInterval is how often the subscriber re-reads the mailbox
// when no announcements arrive.
const DefaultResyncInterval = 30 * time.Second

// Snapshot is the state of the mailbox at subscribe time.
type Snapshot struct {
	Updates []*mailbox.ConnectionUpdate
	Values  []*mailbox.ConnectionValue
	Live    bool
}

// Subscriber observes one deployment's mailbox. Callbacks run on the
// subscriber's own goroutine, one at a time.
type Subscriber struct {
	client   *mailbox.Client
	onUpdate UpdateFunc
	onValue  ValueFunc
	resync   time.Duration

	mu sync.Mutex
	// lastProcessedID is the identity of the newest update already handed
	// to OnUpdate. Reset only by Close; a fresh subscriber starts clean.
	lastProcessedID string
	values          map[string]*mailbox.ConnectionValue
	live            bool

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe starts observing the deployment's mailbox through the given
// client and returns the subscriber plus the initial snapshot. The snapshot
// is processed through the callbacks before Subscribe returns, so a caller
// sees the current head update and every current value without waiting for
// upstream activity.
//
// A nil client or Enabled=false yields an inert subscriber whose snapshot
// reports Live=false. Caller must Close() a live subscriber when done.
func Subscribe(ctx context.Context, client *mailbox.Client, opts Options) (*Subscriber, *Snapshot, error) {
	s := &Subscriber{
		client:   client,
		onUpdate: opts.OnUpdate,
		onValue:  opts.OnValue,
		resync:   opts.ResyncInterval,
		values:   make(map[string]*mailbox.ConnectionValue),
		done:     make(chan struct{}),
	}
	if s.resync <= 0 {
		s.resync = DefaultResyncInterval
	}

	if client == nil || !opts.Enabled {
		close(s.done)
		return s, &Snapshot{Live: false}, nil
	}

	sub, err := client.SubscribeUpdates(ctx)
	if err != nil {
		close(s.done)
		return nil, nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.live = true

	snapshot, err := s.refresh(subCtx)
	if err != nil {
		sub.Close()
		cancel()
		close(s.done)
		return nil, nil, err
	}
	snapshot.Live = true

	go s.run(subCtx, sub)

	return s, snapshot, nil
}

// Live reports whether the subscription is observing the mailbox.
func (s *Subscriber) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Values returns the locally cached resolved values.
func (s *Subscriber) Values() []*mailbox.ConnectionValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*mailbox.ConnectionValue, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out
}

// ClearValues forgets all locally cached values. The shared mailbox is not
// touched; the next snapshot repopulates the cache.
func (s *Subscriber) ClearValues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]*mailbox.ConnectionValue)
}

// RequestResolution synthesizes a wildcard update and feeds it synchronously
// into the update callback. It forces re-resolution without waiting for a
// real upstream change and leaves the new-head tracking untouched.
func (s *Subscriber) RequestResolution() {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(&mailbox.ConnectionUpdate{
		ID:                 uuid.New().String(),
		SourceDeploymentID: s.deploymentName(),
		ChangedPaths:       []string{"*"},
		TimestampMs:        time.Now().UnixMilli(),
	})
}

// Close tears the subscription down: listeners stop, the liveness flag
// clears, and all local memory (cached values, last processed update) is
// dropped so a fresh Subscribe starts clean. Safe to call multiple times.
func (s *Subscriber) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.live = false
		s.lastProcessedID = ""
		s.values = make(map[string]*mailbox.ConnectionValue)
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
	return nil
}

func (s *Subscriber) deploymentName() string {
	if s.client == nil {
		return ""
	}
	return s.client.DeploymentName()
}

// run processes announcements until the context ends. Every announcement
// triggers a full snapshot refresh rather than trusting the announced
// payload: the stream is at-most-once and may lag the mailbox.
func (s *Subscriber) run(ctx context.Context, sub *mailbox.Subscription) {
	defer close(s.done)
	defer sub.Close()

	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, err := s.refresh(ctx); err != nil {
				log.Printf("[Connection] Error refreshing mailbox for %s: %v", s.deploymentName(), err)
			}
		case err, ok := <-sub.Errors():
			if !ok {
				return
			}
			log.Printf("[Connection] Subscription error for %s: %v", s.deploymentName(), err)
		case <-ticker.C:
			if _, err := s.refresh(ctx); err != nil {
				log.Printf("[Connection] Error refreshing mailbox for %s: %v", s.deploymentName(), err)
			}
		}
	}
}

// refresh re-reads the mailbox and runs the callbacks: the update callback
// once if the head is genuinely new, the value callback for every present
// entry.
func (s *Subscriber) refresh(ctx context.Context) (*Snapshot, error) {
	updates, err := s.client.Updates(ctx)
	if err != nil {
		return nil, err
	}
	values, err := s.client.Values(ctx)
	if err != nil {
		return nil, err
	}

	var fireUpdate *mailbox.ConnectionUpdate

	s.mu.Lock()
	live := s.live
	if len(updates) > 0 && updates[0].ID != s.lastProcessedID {
		fireUpdate = updates[0]
		s.lastProcessedID = updates[0].ID
	}
	s.values = make(map[string]*mailbox.ConnectionValue, len(values))
	for _, v := range values {
		s.values[mailbox.ValueField(v.ElementID, v.InputPath)] = v
	}
	s.mu.Unlock()

	if fireUpdate != nil && s.onUpdate != nil {
		s.onUpdate(fireUpdate)
	}
	if s.onValue != nil {
		for _, v := range values {
			s.onValue(v.ElementID, v.InputPath, v.Value)
		}
	}

	return &Snapshot{Updates: updates, Values: values, Live: live}, nil
}
