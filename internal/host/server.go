// Package host implements the trusted side of a deployment: it owns the
// authoritative instance state in Redis, serves sandboxed guests over the
// bridge, and drives the connection mailbox in both directions (announcing
// its own changes, resolving values for deployments that observe it).
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/internal/connection"
	"github.com/hivelab/comb/pkg/bridge"
	"github.com/hivelab/comb/pkg/mailbox"
	"github.com/hivelab/comb/pkg/manifest"
)

// ActionFunc executes one declared element action against the instance's
// current state. It returns the state updates to apply (may be nil) and the
// JSON result handed back to the guest.
type ActionFunc func(ctx context.Context, state *bridge.BlockState, userID string, args json.RawMessage) (*bridge.StateUpdates, json.RawMessage, error)

// MemberSource supplies space members for get_members requests.
type MemberSource interface {
	Members(ctx context.Context, query *bridge.MemberQuery) ([]bridge.Member, error)
}

// PostSink receives posts created by guests.
type PostSink interface {
	CreatePost(ctx context.Context, userID string, post *bridge.PostOptions) (postID string, err error)
}

// Server coordinates one deployment: instance state, guest sessions, the
// deployment's own mailbox, and subscriptions to connected deployments.
type Server struct {
	cfg      *config.CombConfig
	registry *manifest.Registry
	box      *mailbox.Client

	redisOpts *redis.Options

	members MemberSource
	posts   PostSink

	mu       sync.Mutex
	sessions map[string][]*Session           // instance name -> live sessions
	actions  map[string]map[string]ActionFunc // element id -> action id -> handler
	inputs   map[string]map[string]json.RawMessage // instance name -> input -> resolved value
	subs     []*connection.Subscriber
	sources  []*mailbox.Client
}

// NewServer creates a server for the deployment described by cfg.
// The mailbox client must be scoped to cfg.Deployment.Name; redisOpts is
// reused to open read-only clients for connected source deployments.
func NewServer(cfg *config.CombConfig, registry *manifest.Registry, box *mailbox.Client, redisOpts *redis.Options) *Server {
	return &Server{
		cfg:       cfg,
		registry:  registry,
		box:       box,
		redisOpts: redisOpts,
		sessions:  make(map[string][]*Session),
		actions:   make(map[string]map[string]ActionFunc),
		inputs:    make(map[string]map[string]json.RawMessage),
	}
}

// SetMemberSource installs the member provider. Without one, get_members
// returns an empty list.
func (s *Server) SetMemberSource(src MemberSource) { s.members = src }

// SetPostSink installs the post receiver. Without one, create_post fails.
func (s *Server) SetPostSink(sink PostSink) { s.posts = sink }

// HandleAction registers a handler for one element action. The action must
// still be declared in the element's manifest or guests can never reach it.
func (s *Server) HandleAction(elementID, actionID string, fn ActionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actions[elementID] == nil {
		s.actions[elementID] = make(map[string]ActionFunc)
	}
	s.actions[elementID][actionID] = fn
}

// Start opens a subscription to every enabled connection source. Call Stop
// to tear them down.
func (s *Server) Start(ctx context.Context) error {
	for _, conn := range s.cfg.Connections {
		if !conn.IsEnabled() {
			log.Printf("[Host] Connection to %s disabled, skipping", conn.SourceDeployment)
			continue
		}

		source, err := mailbox.NewClient(s.redisOpts, conn.SourceDeployment)
		if err != nil {
			return fmt.Errorf("failed to create mailbox client for %s: %w", conn.SourceDeployment, err)
		}

		cc := conn
		sub, _, err := connection.Subscribe(ctx, source, connection.Options{
			Enabled: true,
			OnUpdate: func(u *mailbox.ConnectionUpdate) {
				if err := s.resolveConnection(ctx, source, &cc, u); err != nil {
					log.Printf("[Host] Error resolving connection from %s: %v", cc.SourceDeployment, err)
				}
			},
			OnValue: func(elementID, inputPath string, value json.RawMessage) {
				s.applyValue(elementID, inputPath, value)
			},
		})
		if err != nil {
			source.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", conn.SourceDeployment, err)
		}

		log.Printf("[Host] Subscribed to deployment '%s' (%d targets)", conn.SourceDeployment, len(conn.Targets))

		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.sources = append(s.sources, source)
		s.mu.Unlock()
	}

	return nil
}

// Stop closes all connection subscriptions and their mailbox clients.
func (s *Server) Stop() {
	s.mu.Lock()
	subs := s.subs
	sources := s.sources
	s.subs = nil
	s.sources = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	for _, src := range sources {
		src.Close()
	}
}

// elementID resolves an instance name from comb.yml to its canonical
// element id. Returns an error for instances the composition doesn't define.
func (s *Server) elementID(instanceName string) (string, error) {
	el, ok := s.cfg.Elements[instanceName]
	if !ok {
		return "", fmt.Errorf("unknown instance '%s'", instanceName)
	}
	canonical, ok := s.registry.Resolve(el.Element)
	if !ok {
		return "", fmt.Errorf("instance '%s' references unknown element '%s'", instanceName, el.Element)
	}
	return canonical, nil
}

// loadOrInit returns the instance's state record, creating an empty one for
// instances that have never been written.
func (s *Server) loadOrInit(ctx context.Context, instanceName string) (*mailbox.InstanceState, error) {
	elementID, err := s.elementID(instanceName)
	if err != nil {
		return nil, err
	}

	state, err := s.box.GetInstanceState(ctx, instanceName)
	if err != nil {
		if !mailbox.IsNotFound(err) {
			return nil, err
		}
		state = &mailbox.InstanceState{
			InstanceID: instanceName,
			ElementID:  elementID,
			Shared:     map[string]any{},
			Personal:   map[string]map[string]any{},
		}
	}
	return state, nil
}

// projection builds the per-user view of an instance's state.
func projection(state *mailbox.InstanceState, userID string) *bridge.BlockState {
	out := &bridge.BlockState{
		Shared:   make(map[string]any, len(state.Shared)),
		Personal: make(map[string]any),
	}
	for k, v := range state.Shared {
		out.Shared[k] = v
	}
	for k, v := range state.Personal[userID] {
		out.Personal[k] = v
	}
	return out
}

// applyUpdates is the single write path for instance state. It merges the
// updates, bumps the sequence number, persists the record, pushes the new
// state to every live session of the instance, and announces shared changes
// on the deployment's mailbox.
func (s *Server) applyUpdates(ctx context.Context, instanceName, userID string, updates *bridge.StateUpdates) (*bridge.BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadOrInit(ctx, instanceName)
	if err != nil {
		return nil, err
	}

	for k, v := range updates.Shared {
		state.Shared[k] = v
	}
	if len(updates.Personal) > 0 {
		if state.Personal == nil {
			state.Personal = map[string]map[string]any{}
		}
		if state.Personal[userID] == nil {
			state.Personal[userID] = map[string]any{}
		}
		for k, v := range updates.Personal {
			state.Personal[userID][k] = v
		}
	}

	state.Seq++
	state.UpdatedAtMs = time.Now().UnixMilli()

	if err := s.box.SaveInstanceState(ctx, state); err != nil {
		return nil, err
	}

	s.broadcastLocked(instanceName, state)

	if len(updates.Shared) > 0 {
		paths := make([]string, 0, len(updates.Shared))
		for k := range updates.Shared {
			paths = append(paths, "shared."+k)
		}
		update, err := mailbox.NewUpdate(s.cfg.Deployment.Name, paths, state.UpdatedAtMs)
		if err == nil {
			err = s.box.PublishUpdate(ctx, update)
		}
		if err != nil {
			log.Printf("[Host] Error announcing state change for %s: %v", instanceName, err)
		}
	}

	return projection(state, userID), nil
}

// broadcastLocked pushes the instance's new state to every live session.
// Caller holds s.mu.
func (s *Server) broadcastLocked(instanceName string, state *mailbox.InstanceState) {
	for _, sess := range s.sessions[instanceName] {
		if err := sess.router.PushState(projection(state, sess.userID), state.Seq); err != nil {
			log.Printf("[Host] Error pushing state to session %s/%s: %v", instanceName, sess.userID, err)
		}
	}
}

// resolveConnection reads the source deployment's instances and writes one
// resolved value per target into the source's mailbox, where every
// subscriber of that deployment observes them.
func (s *Server) resolveConnection(ctx context.Context, source *mailbox.Client, conn *config.ConnectionConfig, update *mailbox.ConnectionUpdate) error {
	now := time.Now().UnixMilli()

	values := make([]*mailbox.ConnectionValue, 0, len(conn.Targets))
	for _, target := range conn.Targets {
		state, err := source.GetInstanceState(ctx, target.SourceElement)
		if err != nil {
			if mailbox.IsNotFound(err) {
				continue
			}
			return err
		}

		raw, err := json.Marshal(state.Shared[target.SourcePath])
		if err != nil {
			return fmt.Errorf("failed to marshal value at %s.%s: %w", target.SourceElement, target.SourcePath, err)
		}

		elementID, err := s.elementID(target.Element)
		if err != nil {
			return err
		}

		values = append(values, &mailbox.ConnectionValue{
			ElementID:          elementID,
			InputPath:          target.Input,
			Value:              raw,
			SourceDeploymentID: conn.SourceDeployment,
			ResolvedAtMs:       now,
		})
	}

	if len(values) == 0 {
		return nil
	}
	return source.PutValues(ctx, values...)
}

// applyValue stores a resolved value for every local instance whose element
// matches. Guests read it back through get_input.
func (s *Server) applyValue(elementID, inputPath string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, el := range s.cfg.Elements {
		canonical, ok := s.registry.Resolve(el.Element)
		if !ok || canonical != elementID {
			continue
		}
		if s.inputs[name] == nil {
			s.inputs[name] = make(map[string]json.RawMessage)
		}
		s.inputs[name][inputPath] = value
	}
}

// defaultInput returns the manifest default for an element's config field,
// JSON-encoded, if one is declared.
func (s *Server) defaultInput(elementRef, inputID string) (json.RawMessage, bool) {
	m := s.registry.Get(elementRef)
	if m == nil {
		return nil, false
	}
	field, ok := m.RequiredConfig[inputID]
	if !ok {
		field, ok = m.OptionalConfig[inputID]
	}
	if !ok || field.Default == nil {
		return nil, false
	}
	raw, err := json.Marshal(field.Default)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// resolvedInput returns the connection-resolved value for one instance
// input, if any.
func (s *Server) resolvedInput(instanceName, inputPath string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.inputs[instanceName][inputPath]
	return v, ok
}

// RequestResolution forces every live connection subscription to re-run its
// update callback with a wildcard change.
func (s *Server) RequestResolution() {
	s.mu.Lock()
	subs := make([]*connection.Subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.RequestResolution()
	}
}

// Attach creates a session for one guest connection and starts serving its
// transport. The returned session ends when the transport closes or ctx is
// cancelled.
func (s *Server) Attach(ctx context.Context, instanceName, userID string, transport bridge.Transport) (*Session, error) {
	if _, err := s.elementID(instanceName); err != nil {
		return nil, err
	}

	sess := &Session{
		server:       s,
		instanceName: instanceName,
		userID:       userID,
	}
	sess.router = bridge.NewRouter(transport, sess)

	s.mu.Lock()
	s.sessions[instanceName] = append(s.sessions[instanceName], sess)
	s.mu.Unlock()

	go func() {
		if err := sess.router.Serve(ctx); err != nil {
			log.Printf("[Host] Session %s/%s ended: %v", instanceName, userID, err)
		}
		s.detach(sess)
	}()

	log.Printf("[Host] Guest attached: instance=%s user=%s", instanceName, userID)
	return sess, nil
}

func (s *Server) detach(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.sessions[sess.instanceName][:0]
	for _, other := range s.sessions[sess.instanceName] {
		if other != sess {
			live = append(live, other)
		}
	}
	s.sessions[sess.instanceName] = live
}
