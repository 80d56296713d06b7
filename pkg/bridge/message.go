package bridge

import "encoding/json"

// Envelope source markers. Every message on the channel carries one; anything
// else on the channel is noise from outside the protocol and is dropped.
const (
	// SourceGuest marks envelopes sent by sandboxed block code.
	SourceGuest = "comb-block"

	// SourceHost marks envelopes sent by the hosting runtime.
	SourceHost = "comb-host"
)

// Envelope is the wire frame for both directions of the bridge.
//
// Guest-to-host envelopes carry the sending instance id; host-to-guest
// envelopes do not (the host addresses a guest by sending on that guest's
// transport, not by naming it). Validation is side-specific: see
// ValidFromGuest and ValidFromHost.
type Envelope struct {
	Source      string   `json:"source"`
	InstanceID  string   `json:"instanceId,omitempty"`
	TimestampMs int64    `json:"timestamp,omitempty"`
	Payload     *Payload `json:"payload"`
}

// ValidFromGuest reports whether the envelope is a well-formed guest message.
// The channel is a shared namespace - other pages, extensions, or stray
// writers can inject arbitrary frames - so failing this check means "ignore
// silently", never "raise an error".
func (e *Envelope) ValidFromGuest() bool {
	return e != nil && e.Source == SourceGuest && e.InstanceID != "" && e.Payload != nil
}

// ValidFromHost reports whether the envelope is a well-formed host message.
func (e *Envelope) ValidFromHost() bool {
	return e != nil && e.Source == SourceHost && e.Payload != nil
}

// Kind discriminates the closed set of payload types on the bridge.
type Kind string

// Guest-to-host request kinds.
const (
	KindGetState      Kind = "get_state"
	KindSetState      Kind = "set_state"
	KindExecuteAction Kind = "execute_action"
	KindGetInput      Kind = "get_input"
	KindEmitOutput    Kind = "emit_output"
	KindGetContext    Kind = "get_context"
	KindNotify        Kind = "notify"
	KindLog           Kind = "log"
	KindReady         Kind = "ready"
	KindCreatePost    Kind = "create_post"
	KindGetMembers    Kind = "get_members"
)

// Host-to-guest response kinds. Each response echoes the requestId of the
// request it answers; the guest correlates by id, not by kind.
const (
	KindStateResponse      Kind = "state_response"
	KindSetStateAck        Kind = "set_state_ack"
	KindActionResponse     Kind = "action_response"
	KindInputResponse      Kind = "input_response"
	KindContextResponse    Kind = "context_response"
	KindCreatePostResponse Kind = "create_post_response"
	KindMembersResponse    Kind = "members_response"
)

// Host-to-guest push kinds. Pushes carry no requestId and expect no reply.
const (
	KindStateUpdate   Kind = "state_update"
	KindContextUpdate Kind = "context_update"
)

// Payload is the tagged union carried inside an envelope. Kind selects which
// of the optional fields are meaningful; everything else stays zero.
type Payload struct {
	Kind      Kind   `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	// Request fields.
	Updates  *StateUpdates   `json:"updates,omitempty"`  // set_state
	ActionID string          `json:"actionId,omitempty"` // execute_action
	Args     json.RawMessage `json:"args,omitempty"`     // execute_action
	InputID  string          `json:"inputId,omitempty"`  // get_input
	OutputID string          `json:"outputId,omitempty"` // emit_output
	Data     json.RawMessage `json:"data,omitempty"`     // emit_output
	Message  string          `json:"message,omitempty"`  // notify, log
	Level    string          `json:"level,omitempty"`    // notify, log
	Post     *PostOptions    `json:"post,omitempty"`     // create_post
	Query    *MemberQuery    `json:"query,omitempty"`    // get_members

	// Response fields.
	Result  json.RawMessage `json:"result,omitempty"`  // action/input/create_post responses
	State   *BlockState     `json:"state,omitempty"`   // state_response, state_update
	Context *BlockContext   `json:"context,omitempty"` // context_response, context_update
	Members []Member        `json:"members,omitempty"` // members_response
	Error   string          `json:"error,omitempty"`   // any response

	// Seq is a per-instance monotonically increasing sequence number stamped
	// on state_update pushes. Shared state itself remains last-write-wins;
	// the seq only lets a receiver discard a push that arrives out of order.
	Seq uint64 `json:"seq,omitempty"`
}

// BlockState is an instance's two state buckets. The shared bucket is
// visible to every viewer of the deployment; the personal bucket is scoped
// to the acting user.
type BlockState struct {
	Shared   map[string]any `json:"shared"`
	Personal map[string]any `json:"personal"`
}

// Clone returns a deep-enough copy of the state: fresh maps with the same
// values. Values themselves are treated as immutable by convention.
func (s *BlockState) Clone() *BlockState {
	if s == nil {
		return &BlockState{Shared: map[string]any{}, Personal: map[string]any{}}
	}
	out := &BlockState{
		Shared:   make(map[string]any, len(s.Shared)),
		Personal: make(map[string]any, len(s.Personal)),
	}
	for k, v := range s.Shared {
		out.Shared[k] = v
	}
	for k, v := range s.Personal {
		out.Personal[k] = v
	}
	return out
}

// StateUpdates is a partial write: keys present in either bucket are merged
// over the instance's current state.
type StateUpdates struct {
	Shared   map[string]any `json:"shared,omitempty"`
	Personal map[string]any `json:"personal,omitempty"`
}

// ApplyTo merges the updates into the given state in place.
func (u *StateUpdates) ApplyTo(s *BlockState) {
	if u == nil || s == nil {
		return
	}
	if s.Shared == nil {
		s.Shared = map[string]any{}
	}
	if s.Personal == nil {
		s.Personal = map[string]any{}
	}
	for k, v := range u.Shared {
		s.Shared[k] = v
	}
	for k, v := range u.Personal {
		s.Personal[k] = v
	}
}

// ChangedPaths returns the dotted bucket paths the updates touch, shared
// first. Used by the host to announce changes on the connection mailbox.
func (u *StateUpdates) ChangedPaths() []string {
	if u == nil {
		return nil
	}
	var paths []string
	for k := range u.Shared {
		paths = append(paths, "shared."+k)
	}
	for k := range u.Personal {
		paths = append(paths, "personal."+k)
	}
	return paths
}

// BlockContext carries the contextual identifiers an instance renders under.
type BlockContext struct {
	UserID       string `json:"userId,omitempty"`
	CampusID     string `json:"campusId,omitempty"`
	SpaceID      string `json:"spaceId,omitempty"`
	DeploymentID string `json:"deploymentId,omitempty"`
}

// PostOptions describes a create_post request.
type PostOptions struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// MemberQuery describes a get_members request. Limit is clamped to
// [1, MaxMemberLimit] by the guest before it ever reaches the wire.
type MemberQuery struct {
	Limit int    `json:"limit,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Member is one entry in a members_response.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
}

// MaxPostContentLength is the longest post content a guest will send.
const MaxPostContentLength = 2000

// MaxMemberLimit caps a single get_members page.
const MaxMemberLimit = 50

// isResponse reports whether the kind answers a pending request.
func (k Kind) isResponse() bool {
	switch k {
	case KindStateResponse, KindSetStateAck, KindActionResponse,
		KindInputResponse, KindContextResponse, KindCreatePostResponse,
		KindMembersResponse:
		return true
	default:
		return false
	}
}
