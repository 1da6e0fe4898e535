package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordgrove/groveapi/internal/auth"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/idp"
)

type engineEnv struct {
	users    *fakeUserRepo
	profiles *fakeProfileRepo
	sessions *fakeSessionRepo
	provider *fakeProvider
	fallback *fakeFallback
	engine   *Engine
}

func newEngineEnv(t *testing.T, rules []auth.RoleRule) *engineEnv {
	t.Helper()
	env := &engineEnv{
		users:    newFakeUserRepo(),
		profiles: newFakeProfileRepo(),
		sessions: newFakeSessionRepo(),
		provider: newFakeProvider(),
		fallback: &fakeFallback{},
	}
	env.fallback.admin = NewAdminReconciler(env.users, env.profiles)
	env.engine = NewEngine(
		NewSnapshotReader(env.sessions, env.provider),
		NewRoleResolver(env.users, rules),
		fastReconciler(env.users, env.profiles),
		env.fallback,
	)
	return env
}

func ctxWithToken(token string) context.Context {
	return auth.SetCredentials(context.Background(), auth.Credentials{AccessToken: token})
}

func TestEngine_ResolvesMetadataRole(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.provider.byToken["tok-u1"] = &idp.Principal{
		ID:       "u1",
		Email:    "u1@grove.example",
		Metadata: map[string]any{"role": "teacher", "name": "Ms. Frizzle"},
	}

	resolved, err := env.engine.Resolve(ctxWithToken("tok-u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", resolved.PrincipalID)
	assert.Equal(t, models.RoleTeacher, resolved.Role)
	assert.NotEmpty(t, resolved.ProfileID)
	assert.Zero(t, env.fallback.callCount())
}

func TestEngine_NoCredentialsIsUnauthenticated(t *testing.T) {
	env := newEngineEnv(t, nil)

	_, err := env.engine.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestEngine_UnresolvedRoleNeverFabricatesRecords(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.provider.byToken["tok-u2"] = &idp.Principal{ID: "u2", Email: "u2@grove.example"}

	_, err := env.engine.Resolve(ctxWithToken("tok-u2"))
	require.ErrorIs(t, err, ErrUnresolved)

	user, findErr := env.users.FindByID(context.Background(), "u2")
	require.NoError(t, findErr)
	assert.Nil(t, user)
	assert.Zero(t, env.fallback.callCount())
}

func TestEngine_EscalatesConflictOnceAndRecovers(t *testing.T) {
	env := newEngineEnv(t, nil)

	// The email belongs to a stale principal from a re-created provider
	// account; local repair reports a conflict and the privileged path
	// repoints the records.
	env.users.put(models.User{ID: "old-id", Email: "u1@grove.example", Role: models.RoleStudent})
	env.profiles.put(models.RoleStudent, repositoryProfile("p1", "old-id", "Kid"))
	env.provider.byToken["tok"] = &idp.Principal{
		ID:       "new-id",
		Email:    "u1@grove.example",
		Metadata: map[string]any{"role": "student"},
	}

	resolved, err := env.engine.Resolve(ctxWithToken("tok"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.fallback.callCount())
	assert.Equal(t, "new-id", resolved.PrincipalID)
	assert.Equal(t, models.RoleStudent, resolved.Role)
	assert.Equal(t, "p1", resolved.ProfileID, "adopted the existing profile instead of creating a new one")

	stale, _ := env.users.FindByID(context.Background(), "old-id")
	assert.Nil(t, stale, "stale role record removed by the repair")
}

func TestEngine_SecondFailureIsTerminal(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.fallback.admin = nil
	env.fallback.err = errors.New("ensure endpoint unavailable")

	env.users.put(models.User{ID: "old-id", Email: "u1@grove.example", Role: models.RoleStudent})
	env.provider.byToken["tok"] = &idp.Principal{
		ID:       "new-id",
		Email:    "u1@grove.example",
		Metadata: map[string]any{"role": "student"},
	}

	_, err := env.engine.Resolve(ctxWithToken("tok"))
	require.ErrorIs(t, err, ErrReconciliationFailed)
	assert.Equal(t, 1, env.fallback.callCount(), "escalation happens exactly once")
}

func TestEngine_NoFallbackConfigured(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.engine = NewEngine(
		NewSnapshotReader(env.sessions, env.provider),
		NewRoleResolver(env.users, nil),
		fastReconciler(env.users, env.profiles),
		nil,
	)

	env.users.put(models.User{ID: "old-id", Email: "u1@grove.example", Role: models.RoleStudent})
	env.provider.byToken["tok"] = &idp.Principal{
		ID:       "new-id",
		Email:    "u1@grove.example",
		Metadata: map[string]any{"role": "student"},
	}

	_, err := env.engine.Resolve(ctxWithToken("tok"))
	assert.ErrorIs(t, err, ErrReconciliationFailed)
}

func TestEngine_ResolutionIsNotCached(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.provider.byToken["tok"] = &idp.Principal{
		ID:       "u1",
		Email:    "u1@grove.example",
		Metadata: map[string]any{"role": "student"},
	}

	first, err := env.engine.Resolve(ctxWithToken("tok"))
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, first.Role)

	// An operator changes the persisted role between calls; the next
	// resolution must observe it.
	env.users.put(models.User{ID: "u1", Email: "u1@grove.example", Role: models.RoleTeacher})

	second, err := env.engine.Resolve(ctxWithToken("tok"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, second.Role)
}

func TestEngine_SessionBackedResolution(t *testing.T) {
	env := newEngineEnv(t, nil)

	idToken := buildUnsignedIDToken(t, map[string]any{
		"sub":           "u1",
		"email":         "u1@grove.example",
		"user_metadata": map[string]any{"role": "parent", "name": "Mom"},
	})
	token, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	require.NoError(t, env.sessions.Create(context.Background(), &models.Session{
		ID:        "sess-1",
		UserID:    "u1",
		TokenHash: hash,
		IDToken:   idToken,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	ctx := auth.SetCredentials(context.Background(), auth.Credentials{SessionToken: token})
	resolved, err := env.engine.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", resolved.PrincipalID)
	assert.Equal(t, models.RoleParent, resolved.Role)
}
