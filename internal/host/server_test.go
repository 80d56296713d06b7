package host

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/pkg/bridge"
	"github.com/hivelab/comb/pkg/mailbox"
	"github.com/hivelab/comb/pkg/manifest"
)

func testConfig() *config.CombConfig {
	return &config.CombConfig{
		Version:    "1.0",
		Deployment: config.DeploymentConfig{Name: "spring-fair", SpaceID: "space-1", CampusID: "campus-1"},
		Elements: map[string]config.ElementConfig{
			"main-poll": {
				Element: "poll-element",
				Config:  map[string]any{"question": "Pizza night?", "options": []any{"yes", "no"}},
			},
			"fair-events": {Element: "event-list"},
			"prompt":      {Element: "text-prompt"},
		},
	}
}

func setupServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return setupServerOn(t, mr, testConfig()), mr
}

func setupServerOn(t *testing.T, mr *miniredis.Miniredis, cfg *config.CombConfig) *Server {
	opts := &redis.Options{Addr: mr.Addr()}
	box, err := mailbox.NewClient(opts, cfg.Deployment.Name)
	require.NoError(t, err)
	t.Cleanup(func() { box.Close() })

	return NewServer(cfg, manifest.Default(), box, opts)
}

// attachSDK wires a guest SDK to the server over a pipe.
func attachSDK(t *testing.T, srv *Server, instance, user string) *bridge.SDK {
	guestEnd, hostEnd := NewTestTransportPair()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := srv.Attach(ctx, instance, user, hostEnd)
	require.NoError(t, err)

	sdk, err := bridge.New(bridge.Config{InstanceID: instance, Transport: guestEnd})
	require.NoError(t, err)
	t.Cleanup(func() { sdk.Close() })
	return sdk
}

// NewTestTransportPair is a readable alias for a bridge pipe.
func NewTestTransportPair() (bridge.Transport, bridge.Transport) {
	return bridge.NewPipe()
}

func TestAttachUnknownInstance(t *testing.T) {
	srv, _ := setupServer(t)
	_, hostEnd := NewTestTransportPair()

	_, err := srv.Attach(context.Background(), "ghost", "user-1", hostEnd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown instance")
}

func TestStateRoundTrip(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()
	sdk := attachSDK(t, srv, "main-poll", "user-1")

	t.Run("fresh instance starts empty", func(t *testing.T) {
		state, err := sdk.GetState(ctx)
		require.NoError(t, err)
		assert.Empty(t, state.Shared)
		assert.Empty(t, state.Personal)
	})

	t.Run("set_state persists and reads back", func(t *testing.T) {
		err := sdk.SetState(ctx, &bridge.StateUpdates{
			Shared:   map[string]any{"results": map[string]any{"yes": 1}},
			Personal: map[string]any{"myVote": "yes"},
		})
		require.NoError(t, err)

		state, err := sdk.GetState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "yes", state.Personal["myVote"])
	})

	t.Run("empty update is rejected", func(t *testing.T) {
		err := sdk.SetState(ctx, &bridge.StateUpdates{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty state update")
	})
}

func TestPersonalStateIsPerUser(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()

	alice := attachSDK(t, srv, "main-poll", "alice")
	bob := attachSDK(t, srv, "main-poll", "bob")

	require.NoError(t, alice.SetState(ctx, &bridge.StateUpdates{Personal: map[string]any{"myVote": "yes"}}))

	bobState, err := bob.GetState(ctx)
	require.NoError(t, err)
	assert.Empty(t, bobState.Personal)

	aliceState, err := alice.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "yes", aliceState.Personal["myVote"])
}

func TestSharedChangeIsPushedToAllSessions(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()

	alice := attachSDK(t, srv, "main-poll", "alice")
	bob := attachSDK(t, srv, "main-poll", "bob")

	got := make(chan *bridge.BlockState, 4)
	bob.OnStateChange(func(s *bridge.BlockState) { got <- s })

	require.NoError(t, alice.SetState(ctx, &bridge.StateUpdates{Shared: map[string]any{"question": "Movie night?"}}))

	select {
	case state := <-got:
		assert.Equal(t, "Movie night?", state.Shared["question"])
		// Bob never sees Alice's personal bucket.
		assert.Empty(t, state.Personal)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the push")
	}
}

func TestSharedChangeAnnouncedOnMailbox(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()
	sdk := attachSDK(t, srv, "main-poll", "alice")

	require.NoError(t, sdk.SetState(ctx, &bridge.StateUpdates{Shared: map[string]any{"question": "Quiz night?"}}))

	latest, err := srv.box.LatestUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "spring-fair", latest.SourceDeploymentID)
	assert.Contains(t, latest.ChangedPaths, "shared.question")

	t.Run("personal-only change announces nothing", func(t *testing.T) {
		require.NoError(t, sdk.SetState(ctx, &bridge.StateUpdates{Personal: map[string]any{"myVote": "a"}}))

		updates, err := srv.box.Updates(ctx)
		require.NoError(t, err)
		assert.Len(t, updates, 1)
	})
}

func TestExecuteAction(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()
	sdk := attachSDK(t, srv, "main-poll", "alice")

	srv.HandleAction("poll-element", "vote", func(ctx context.Context, state *bridge.BlockState, userID string, args json.RawMessage) (*bridge.StateUpdates, json.RawMessage, error) {
		var req struct {
			Option string `json:"option"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, nil, err
		}
		return &bridge.StateUpdates{Personal: map[string]any{"myVote": req.Option}},
			json.RawMessage(`{"accepted":true}`), nil
	})

	t.Run("declared action with handler runs", func(t *testing.T) {
		result, err := sdk.ExecuteAction(ctx, "vote", map[string]any{"option": "yes"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"accepted":true}`, string(result))

		state, err := sdk.GetState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "yes", state.Personal["myVote"])
	})

	t.Run("undeclared action is rejected", func(t *testing.T) {
		_, err := sdk.ExecuteAction(ctx, "self-destruct", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not declared")
	})

	t.Run("declared action without handler is rejected", func(t *testing.T) {
		_, err := sdk.ExecuteAction(ctx, "retract-vote", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no registered handler")
	})
}

func TestGetInputPrecedence(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()

	t.Run("configured value", func(t *testing.T) {
		sdk := attachSDK(t, srv, "main-poll", "alice")
		v, err := sdk.GetInput(ctx, "question")
		require.NoError(t, err)
		assert.JSONEq(t, `"Pizza night?"`, string(v))
	})

	t.Run("manifest default", func(t *testing.T) {
		sdk := attachSDK(t, srv, "prompt", "alice")
		v, err := sdk.GetInput(ctx, "placeholder")
		require.NoError(t, err)
		assert.JSONEq(t, `"Type here..."`, string(v))
	})

	t.Run("unknown input is null", func(t *testing.T) {
		sdk := attachSDK(t, srv, "prompt", "alice")
		v, err := sdk.GetInput(ctx, "nonsense")
		require.NoError(t, err)
		assert.JSONEq(t, `null`, string(v))
	})

	t.Run("connection-resolved value wins", func(t *testing.T) {
		srv.applyValue("event-list", "events", json.RawMessage(`[{"title":"Quiz night"}]`))

		sdk := attachSDK(t, srv, "fair-events", "alice")
		v, err := sdk.GetInput(ctx, "events")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"title":"Quiz night"}]`, string(v))
	})
}

func TestEmitOutputBecomesSharedState(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()
	sdk := attachSDK(t, srv, "main-poll", "alice")

	require.NoError(t, sdk.EmitOutput("range", map[string]any{"from": "2026-09-01"}))

	require.Eventually(t, func() bool {
		state, err := sdk.GetState(ctx)
		if err != nil {
			return false
		}
		_, ok := state.Shared["range"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	latest, err := srv.box.LatestUpdate(ctx)
	require.NoError(t, err)
	assert.Contains(t, latest.ChangedPaths, "shared.range")
}

func TestGetContext(t *testing.T) {
	srv, _ := setupServer(t)
	sdk := attachSDK(t, srv, "main-poll", "alice")

	bc, err := sdk.GetContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", bc.UserID)
	assert.Equal(t, "space-1", bc.SpaceID)
	assert.Equal(t, "campus-1", bc.CampusID)
	assert.Equal(t, "spring-fair", bc.DeploymentID)
}

func TestReadyPushesCurrentState(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()

	writer := attachSDK(t, srv, "main-poll", "alice")
	require.NoError(t, writer.SetState(ctx, &bridge.StateUpdates{Shared: map[string]any{"question": "Quiz?"}}))

	late := attachSDK(t, srv, "main-poll", "bob")
	got := make(chan *bridge.BlockState, 1)
	late.OnStateChange(func(s *bridge.BlockState) {
		select {
		case got <- s:
		default:
		}
	})

	require.NoError(t, late.Ready())

	select {
	case state := <-got:
		assert.Equal(t, "Quiz?", state.Shared["question"])
	case <-time.After(2 * time.Second):
		t.Fatal("ready never triggered a state push")
	}
}

type memberList []bridge.Member

func (m memberList) Members(ctx context.Context, query *bridge.MemberQuery) ([]bridge.Member, error) {
	if query.Role == "" {
		return m, nil
	}
	var out []bridge.Member
	for _, mem := range m {
		if mem.Role == query.Role {
			out = append(out, mem)
		}
	}
	return out, nil
}

func TestGetMembers(t *testing.T) {
	srv, _ := setupServer(t)
	sdk := attachSDK(t, srv, "main-poll", "alice")
	ctx := context.Background()

	t.Run("no source yields empty list", func(t *testing.T) {
		members, err := sdk.GetMembers(ctx, bridge.MemberQuery{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	srv.SetMemberSource(memberList{
		{UserID: "u1", DisplayName: "Ada", Role: "leader"},
		{UserID: "u2", DisplayName: "Grace", Role: "member"},
		{UserID: "u3", DisplayName: "Edsger", Role: "member"},
	})

	t.Run("role filter applies", func(t *testing.T) {
		members, err := sdk.GetMembers(ctx, bridge.MemberQuery{Limit: 10, Role: "member"})
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("limit truncates", func(t *testing.T) {
		members, err := sdk.GetMembers(ctx, bridge.MemberQuery{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})
}

type recordingPosts struct{ posts []string }

func (r *recordingPosts) CreatePost(ctx context.Context, userID string, post *bridge.PostOptions) (string, error) {
	r.posts = append(r.posts, post.Content)
	return "post-1", nil
}

func TestCreatePost(t *testing.T) {
	srv, _ := setupServer(t)
	sdk := attachSDK(t, srv, "main-poll", "alice")
	ctx := context.Background()

	t.Run("no sink rejects", func(t *testing.T) {
		_, err := sdk.CreatePost(ctx, bridge.PostOptions{Content: "hello"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not available")
	})

	sink := &recordingPosts{}
	srv.SetPostSink(sink)

	t.Run("post lands in the sink", func(t *testing.T) {
		result, err := sdk.CreatePost(ctx, bridge.PostOptions{Content: "Poll is live!"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"postId":"post-1"}`, string(result))
		assert.Equal(t, []string{"Poll is live!"}, sink.posts)
	})

	t.Run("content limit counts characters not bytes", func(t *testing.T) {
		// Twice the limit in bytes, exactly at it in characters.
		content := strings.Repeat("é", bridge.MaxPostContentLength)
		_, err := sdk.CreatePost(ctx, bridge.PostOptions{Content: content})
		require.NoError(t, err)
		assert.Equal(t, content, sink.posts[len(sink.posts)-1])
	})
}

func TestConnectionResolutionAcrossDeployments(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	ctx := context.Background()

	// Source deployment publishes a calendar.
	sourceCfg := &config.CombConfig{
		Version:    "1.0",
		Deployment: config.DeploymentConfig{Name: "student-hub"},
		Elements: map[string]config.ElementConfig{
			"calendar": {Element: "event-list"},
		},
	}
	source := setupServerOn(t, mr, sourceCfg)

	// Target deployment feeds the calendar's events into its own list.
	targetCfg := testConfig()
	targetCfg.Connections = []config.ConnectionConfig{{
		SourceDeployment: "student-hub",
		Targets: []config.ConnectionTarget{{
			Element:       "fair-events",
			Input:         "events",
			SourceElement: "calendar",
			SourcePath:    "events",
		}},
	}}
	target := setupServerOn(t, mr, targetCfg)

	require.NoError(t, target.Start(ctx))
	t.Cleanup(target.Stop)

	// A guest on the source writes shared state, announcing on its mailbox.
	sourceSDK := attachSDK(t, source, "calendar", "organiser")
	require.NoError(t, sourceSDK.SetState(ctx, &bridge.StateUpdates{
		Shared: map[string]any{"events": []any{map[string]any{"title": "Quiz night"}}},
	}))

	// The target observes the update, resolves the value, and serves it.
	targetSDK := attachSDK(t, target, "fair-events", "visitor")
	require.Eventually(t, func() bool {
		v, err := targetSDK.GetInput(ctx, "events")
		if err != nil {
			return false
		}
		var events []map[string]any
		if json.Unmarshal(v, &events) != nil {
			return false
		}
		return len(events) == 1 && events[0]["title"] == "Quiz night"
	}, 3*time.Second, 20*time.Millisecond)
}
