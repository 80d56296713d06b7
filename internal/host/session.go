package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/hivelab/comb/pkg/bridge"
)

// Session is one guest connection: a single instance rendered for a single
// user. It implements bridge.Handler; the server behind it is the sole
// arbiter of state.
type Session struct {
	server       *Server
	instanceName string
	userID       string
	router       *bridge.Router
}

var _ bridge.Handler = (*Session)(nil)

// InstanceName returns the instance this session serves.
func (s *Session) InstanceName() string { return s.instanceName }

// UserID returns the acting user.
func (s *Session) UserID() string { return s.userID }

// GetState returns the per-user projection of the instance's state.
func (s *Session) GetState(ctx context.Context, instanceID string) (*bridge.BlockState, error) {
	state, err := s.server.loadOrInit(ctx, s.instanceName)
	if err != nil {
		return nil, err
	}
	return projection(state, s.userID), nil
}

// SetState merges the guest's updates through the server's write path.
func (s *Session) SetState(ctx context.Context, instanceID string, updates *bridge.StateUpdates) (*bridge.BlockState, error) {
	if updates == nil || (len(updates.Shared) == 0 && len(updates.Personal) == 0) {
		return nil, fmt.Errorf("empty state update")
	}
	return s.server.applyUpdates(ctx, s.instanceName, s.userID, updates)
}

// ExecuteAction runs a declared element action. Undeclared actions are
// rejected before any handler runs.
func (s *Session) ExecuteAction(ctx context.Context, instanceID, actionID string, args json.RawMessage) (json.RawMessage, error) {
	elementID, err := s.server.elementID(s.instanceName)
	if err != nil {
		return nil, err
	}
	if !s.server.registry.DeclaresAction(elementID, actionID) {
		return nil, fmt.Errorf("action %q not declared by element %q", actionID, elementID)
	}

	s.server.mu.Lock()
	fn := s.server.actions[elementID][actionID]
	s.server.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("action %q has no registered handler", actionID)
	}

	state, err := s.server.loadOrInit(ctx, s.instanceName)
	if err != nil {
		return nil, err
	}

	updates, result, err := fn(ctx, projection(state, s.userID), s.userID, args)
	if err != nil {
		return nil, err
	}
	if updates != nil {
		if _, err := s.server.applyUpdates(ctx, s.instanceName, s.userID, updates); err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = json.RawMessage(`null`)
	}
	return result, nil
}

// GetInput resolves one input for the instance. Connection-resolved values
// win; otherwise the composition's configured value applies, then the
// manifest default, then JSON null.
func (s *Session) GetInput(ctx context.Context, instanceID, inputID string) (json.RawMessage, error) {
	if v, ok := s.server.resolvedInput(s.instanceName, inputID); ok {
		return v, nil
	}

	el := s.server.cfg.Elements[s.instanceName]
	if v, ok := el.Config[inputID]; ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal configured input %q: %w", inputID, err)
		}
		return raw, nil
	}

	if dv, ok := s.server.defaultInput(el.Element, inputID); ok {
		return dv, nil
	}

	return json.RawMessage(`null`), nil
}

// EmitOutput records an output emission as shared state under the output's
// name, which announces it on the mailbox like any other shared change.
func (s *Session) EmitOutput(ctx context.Context, instanceID, outputID string, data json.RawMessage) error {
	var value any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("output %q carries invalid JSON: %w", outputID, err)
		}
	}
	_, err := s.server.applyUpdates(ctx, s.instanceName, s.userID, &bridge.StateUpdates{
		Shared: map[string]any{outputID: value},
	})
	return err
}

// GetContext returns the deployment's context for this user.
func (s *Session) GetContext(ctx context.Context, instanceID string) (*bridge.BlockContext, error) {
	return &bridge.BlockContext{
		UserID:       s.userID,
		CampusID:     s.server.cfg.Deployment.CampusID,
		SpaceID:      s.server.cfg.Deployment.SpaceID,
		DeploymentID: s.server.cfg.Deployment.Name,
	}, nil
}

// Notify surfaces a user-facing notification. The daemon has no UI of its
// own, so notifications land in the log for the embedding surface to pick up.
func (s *Session) Notify(ctx context.Context, instanceID, message, level string) {
	log.Printf("[Host] Notify (%s) %s/%s: %s", level, s.instanceName, s.userID, message)
}

// Log records a guest log line under the instance's name.
func (s *Session) Log(ctx context.Context, instanceID, level, message string) {
	log.Printf("[Guest:%s] %s: %s", s.instanceName, strings.ToUpper(level), message)
}

// Ready marks the guest initialised and pushes the current state so the
// first render never races the subscription.
func (s *Session) Ready(ctx context.Context, instanceID string) {
	state, err := s.server.loadOrInit(ctx, s.instanceName)
	if err != nil {
		log.Printf("[Host] Error loading state for ready push to %s: %v", s.instanceName, err)
		return
	}
	if err := s.router.PushState(projection(state, s.userID), state.Seq); err != nil {
		log.Printf("[Host] Error pushing initial state to %s/%s: %v", s.instanceName, s.userID, err)
	}
}

// CreatePost publishes a post on behalf of the acting user.
func (s *Session) CreatePost(ctx context.Context, instanceID string, post *bridge.PostOptions) (json.RawMessage, error) {
	if post == nil || strings.TrimSpace(post.Content) == "" {
		return nil, fmt.Errorf("post content cannot be empty")
	}
	if utf8.RuneCountInString(post.Content) > bridge.MaxPostContentLength {
		return nil, fmt.Errorf("post content exceeds %d characters", bridge.MaxPostContentLength)
	}
	if s.server.posts == nil {
		return nil, fmt.Errorf("posting is not available in this deployment")
	}

	postID, err := s.server.posts.CreatePost(ctx, s.userID, post)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"postId": postID})
}

// GetMembers lists space members visible to the instance.
func (s *Session) GetMembers(ctx context.Context, instanceID string, query *bridge.MemberQuery) ([]bridge.Member, error) {
	if s.server.members == nil {
		return []bridge.Member{}, nil
	}
	if query == nil {
		query = &bridge.MemberQuery{Limit: bridge.MaxMemberLimit}
	}
	members, err := s.server.members.Members(ctx, query)
	if err != nil {
		return nil, err
	}
	if query.Limit > 0 && len(members) > query.Limit {
		members = members[:query.Limit]
	}
	return members, nil
}
