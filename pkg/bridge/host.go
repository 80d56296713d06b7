package bridge

import (
	"context"
	"encoding/json"
	"time"
)

// Handler is the host's business logic behind the bridge. The Router maps
// each guest request kind onto exactly one method, so the compiler - not a
// runtime default branch - catches a handler that misses a message kind.
//
// Errors returned by request methods travel back to the guest in the
// response's error field and surface there as rejected calls; they are the
// channel for legitimate application failures, not transport faults.
type Handler interface {
	// GetState returns the instance's current state.
	GetState(ctx context.Context, instanceID string) (*BlockState, error)

	// SetState merges the updates into the instance's state and returns
	// the resulting state. The host is the sole arbiter of writes.
	SetState(ctx context.Context, instanceID string, updates *StateUpdates) (*BlockState, error)

	// ExecuteAction runs one of the element's declared actions.
	ExecuteAction(ctx context.Context, instanceID, actionID string, args json.RawMessage) (json.RawMessage, error)

	// GetInput resolves a connected input's current value.
	GetInput(ctx context.Context, instanceID, inputID string) (json.RawMessage, error)

	// EmitOutput records an output emission for connection fan-out.
	// Fire-and-forget on the wire; errors are the host's to log.
	EmitOutput(ctx context.Context, instanceID, outputID string, data json.RawMessage) error

	// GetContext returns the instance's block context.
	GetContext(ctx context.Context, instanceID string) (*BlockContext, error)

	// Notify surfaces a user-facing notification.
	Notify(ctx context.Context, instanceID, message, level string)

	// Log records a guest debug or error line.
	Log(ctx context.Context, instanceID, level, message string)

	// Ready marks the instance as initialised.
	Ready(ctx context.Context, instanceID string)

	// CreatePost publishes a post on behalf of the acting user.
	CreatePost(ctx context.Context, instanceID string, post *PostOptions) (json.RawMessage, error)

	// GetMembers lists members visible to the instance.
	GetMembers(ctx context.Context, instanceID string, query *MemberQuery) ([]Member, error)
}

// Router owns the host side of one guest connection: it validates inbound
// envelopes, dispatches requests to the Handler, replies with the matching
// requestId, and provides the push primitives the host uses to keep the
// guest's caches coherent.
type Router struct {
	transport Transport
	handler   Handler
}

// NewRouter creates a router for one guest transport.
func NewRouter(transport Transport, handler Handler) *Router {
	return &Router{transport: transport, handler: handler}
}

// Serve processes inbound envelopes until the transport closes or the
// context is cancelled. Invalid envelopes are dropped silently - the
// channel is a security boundary and stray frames are expected.
func (r *Router) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-r.transport.Receive():
			if !ok {
				return nil
			}
			if !env.ValidFromGuest() {
				continue
			}
			r.dispatch(ctx, env.InstanceID, env.Payload)
		}
	}
}

// PushState broadcasts a full state replacement to the guest. Seq must
// increase monotonically per instance so the guest can discard reordered
// pushes.
func (r *Router) PushState(state *BlockState, seq uint64) error {
	return r.push(&Payload{Kind: KindStateUpdate, State: state, Seq: seq})
}

// PushContext broadcasts a full context replacement to the guest.
func (r *Router) PushContext(bc *BlockContext) error {
	return r.push(&Payload{Kind: KindContextUpdate, Context: bc})
}

// Close closes the underlying transport.
func (r *Router) Close() error {
	return r.transport.Close()
}

func (r *Router) dispatch(ctx context.Context, instanceID string, p *Payload) {
	switch p.Kind {
	case KindGetState:
		state, err := r.handler.GetState(ctx, instanceID)
		r.respond(p.RequestID, &Payload{Kind: KindStateResponse, State: state}, err)

	case KindSetState:
		state, err := r.handler.SetState(ctx, instanceID, p.Updates)
		r.respond(p.RequestID, &Payload{Kind: KindSetStateAck, State: state}, err)

	case KindExecuteAction:
		result, err := r.handler.ExecuteAction(ctx, instanceID, p.ActionID, p.Args)
		r.respond(p.RequestID, &Payload{Kind: KindActionResponse, Result: result}, err)

	case KindGetInput:
		result, err := r.handler.GetInput(ctx, instanceID, p.InputID)
		r.respond(p.RequestID, &Payload{Kind: KindInputResponse, Result: result}, err)

	case KindGetContext:
		bc, err := r.handler.GetContext(ctx, instanceID)
		r.respond(p.RequestID, &Payload{Kind: KindContextResponse, Context: bc}, err)

	case KindCreatePost:
		result, err := r.handler.CreatePost(ctx, instanceID, p.Post)
		r.respond(p.RequestID, &Payload{Kind: KindCreatePostResponse, Result: result}, err)

	case KindGetMembers:
		members, err := r.handler.GetMembers(ctx, instanceID, p.Query)
		r.respond(p.RequestID, &Payload{Kind: KindMembersResponse, Members: members}, err)

	case KindEmitOutput:
		// Fire-and-forget: the guest is not waiting, so errors stay host-side.
		_ = r.handler.EmitOutput(ctx, instanceID, p.OutputID, p.Data)

	case KindNotify:
		r.handler.Notify(ctx, instanceID, p.Message, p.Level)

	case KindLog:
		r.handler.Log(ctx, instanceID, p.Level, p.Message)

	case KindReady:
		r.handler.Ready(ctx, instanceID)

	default:
		// Unknown kinds from a newer guest are dropped, matching the
		// guest's treatment of unknown pushes.
	}
}

// respond sends a response envelope tagged with the request's id. A handler
// error replaces the result with the error message, verbatim.
func (r *Router) respond(requestID string, p *Payload, err error) {
	if requestID == "" {
		return
	}
	p.RequestID = requestID
	if err != nil {
		*p = Payload{Kind: p.Kind, RequestID: requestID, Error: err.Error()}
	}
	_ = r.push(p)
}

func (r *Router) push(p *Payload) error {
	return r.transport.Send(&Envelope{
		Source:      SourceHost,
		TimestampMs: time.Now().UnixMilli(),
		Payload:     p,
	})
}
