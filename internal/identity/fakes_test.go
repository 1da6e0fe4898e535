package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/idp"
	"github.com/wordgrove/groveapi/internal/repository"
)

// fakeUserRepo mirrors the bun repository semantics in memory: non-failing
// lookups, ErrConflict on unique violations. lagReads makes freshly written
// rows invisible for the first N reads to model read-replica lag.
type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[string]models.User
	lagReads map[string]int

	createErr error
	findErr   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[string]models.User),
		lagReads: make(map[string]int),
	}
}

func (f *fakeUserRepo) put(user models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

func (f *fakeUserRepo) lag(id string, reads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lagReads[id] = reads
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.users[user.ID]; ok {
		return fmt.Errorf("insert user %s: %w", user.ID, repository.ErrConflict)
	}
	for _, existing := range f.users {
		if existing.Email != "" && existing.Email == user.Email {
			return fmt.Errorf("insert user %s: %w", user.ID, repository.ErrConflict)
		}
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.lagReads[id] > 0 {
		f.lagReads[id]--
		return nil, nil
	}
	if user, ok := f.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			if f.lagReads[user.ID] > 0 {
				f.lagReads[user.ID]--
				return nil, nil
			}
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]models.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[models.Role][]repository.Profile
	lagReads map[string]int // userID → invisible reads remaining
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{
		profiles: make(map[models.Role][]repository.Profile),
		lagReads: make(map[string]int),
	}
}

func (f *fakeProfileRepo) put(role models.Role, profile repository.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[role] = append(f.profiles[role], profile)
}

func (f *fakeProfileRepo) lag(userID string, reads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lagReads[userID] = reads
}

func (f *fakeProfileRepo) count(role models.Role, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, profile := range f.profiles[role] {
		if profile.UserID == userID {
			n++
		}
	}
	return n
}

func (f *fakeProfileRepo) Create(_ context.Context, role models.Role, profile *repository.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.profiles[role] {
		if existing.UserID == profile.UserID {
			return fmt.Errorf("insert %s profile: %w", role, repository.ErrConflict)
		}
	}
	f.profiles[role] = append(f.profiles[role], *profile)
	return nil
}

func (f *fakeProfileRepo) FindByUserID(_ context.Context, role models.Role, userID string) (*repository.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lagReads[userID] > 0 {
		f.lagReads[userID]--
		return nil, nil
	}
	for _, profile := range f.profiles[role] {
		if profile.UserID == userID {
			p := profile
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfileRepo) FindByID(_ context.Context, role models.Role, id string) (*repository.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, profile := range f.profiles[role] {
		if profile.ID == id {
			p := profile
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfileRepo) ReassignUser(_ context.Context, role models.Role, oldUserID, newUserID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var moved int64
	for i, profile := range f.profiles[role] {
		if profile.UserID == oldUserID {
			f.profiles[role][i].UserID = newUserID
			moved++
		}
	}
	return moved, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]models.Session)}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.TokenHash] = *session
	return nil
}

func (f *fakeSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[tokenHash]; ok {
		return &session, nil
	}
	return nil, nil
}

func (f *fakeSessionRepo) Touch(_ context.Context, id string) error { return nil }

func (f *fakeSessionRepo) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, session := range f.sessions {
		if session.ID == id {
			session.Revoked = true
			f.sessions[hash] = session
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeProvider struct {
	mu      sync.Mutex
	byToken map[string]*idp.Principal
	getErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byToken: make(map[string]*idp.Principal)}
}

func (f *fakeProvider) GetUser(_ context.Context, accessToken string) (*idp.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if principal, ok := f.byToken[accessToken]; ok {
		return principal, nil
	}
	return nil, idp.ErrUnauthenticated
}

func (f *fakeProvider) SignUp(_ context.Context, email, _ string, metadata map[string]any) (*idp.Principal, error) {
	return &idp.Principal{ID: "signup-" + email, Email: email, Metadata: metadata}, nil
}

// fakeFallback records escalations and optionally applies the privileged
// repair through a real AdminReconciler.
type fakeFallback struct {
	mu    sync.Mutex
	calls []EnsureRequest
	err   error
	admin *AdminReconciler
}

func (f *fakeFallback) EnsureUser(ctx context.Context, req EnsureRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	err := f.err
	admin := f.admin
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if admin != nil {
		_, err := admin.Ensure(ctx, req)
		return err
	}
	return nil
}

func (f *fakeFallback) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fastReconciler shrinks the retry delay so lag tests stay quick.
func fastReconciler(users repository.UserRepository, profiles repository.ProfileRepository) *Reconciler {
	r := NewReconciler(users, profiles)
	r.retryDelay = 0
	return r
}

func repositoryProfile(id, userID, name string) repository.Profile {
	return repository.Profile{ID: id, UserID: userID, Name: name}
}
