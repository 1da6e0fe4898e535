package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/idp"
	"github.com/wordgrove/groveapi/internal/repository"
)

// In-memory repositories backing handler tests. Semantics mirror the bun
// implementations: non-failing lookups, ErrConflict on unique violations.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]models.User)}
}

func (m *memUserRepo) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("insert user %s: %w", user.ID, repository.ErrConflict)
	}
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return fmt.Errorf("insert user %s: %w", user.ID, repository.ErrConflict)
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUserRepo) List(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	return users, nil
}

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[models.Role]map[string]repository.Profile // role → id → profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[models.Role]map[string]repository.Profile)}
}

func (m *memProfileRepo) Create(_ context.Context, role models.Role, profile *repository.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.profiles[role]
	if byID == nil {
		byID = make(map[string]repository.Profile)
		m.profiles[role] = byID
	}
	for _, existing := range byID {
		if existing.UserID == profile.UserID {
			return fmt.Errorf("insert %s profile: %w", role, repository.ErrConflict)
		}
	}
	byID[profile.ID] = *profile
	return nil
}

func (m *memProfileRepo) FindByUserID(_ context.Context, role models.Role, userID string) (*repository.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, profile := range m.profiles[role] {
		if profile.UserID == userID {
			p := profile
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memProfileRepo) FindByID(_ context.Context, role models.Role, id string) (*repository.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile, ok := m.profiles[role][id]; ok {
		return &profile, nil
	}
	return nil, nil
}

func (m *memProfileRepo) ReassignUser(_ context.Context, role models.Role, oldUserID, newUserID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var moved int64
	for id, profile := range m.profiles[role] {
		if profile.UserID == oldUserID {
			profile.UserID = newUserID
			m.profiles[role][id] = profile
			moved++
		}
	}
	return moved, nil
}

type memLinkRepo struct {
	mu       sync.Mutex
	students *memProfileRepo
	links    map[string]map[string]bool // parentID → studentID
}

func newMemLinkRepo(students *memProfileRepo) *memLinkRepo {
	return &memLinkRepo{
		students: students,
		links:    make(map[string]map[string]bool),
	}
}

func (m *memLinkRepo) Link(_ context.Context, parentID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[parentID] == nil {
		m.links[parentID] = make(map[string]bool)
	}
	m.links[parentID][studentID] = true
	return nil
}

func (m *memLinkRepo) ListChildren(ctx context.Context, parentID string) ([]models.Student, error) {
	m.mu.Lock()
	linked := make([]string, 0, len(m.links[parentID]))
	for studentID := range m.links[parentID] {
		linked = append(linked, studentID)
	}
	m.mu.Unlock()

	var children []models.Student
	for _, studentID := range linked {
		profile, err := m.students.FindByID(ctx, models.RoleStudent, studentID)
		if err != nil || profile == nil {
			continue
		}
		children = append(children, models.Student{ID: profile.ID, UserID: profile.UserID, Name: profile.Name, Level: 1})
	}
	return children, nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]models.Session // token hash → session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]models.Session)}
}

func (m *memSessionRepo) Create(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.TokenHash]; ok {
		return fmt.Errorf("insert session: %w", repository.ErrConflict)
	}
	m.sessions[session.TokenHash] = *session
	return nil
}

func (m *memSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[tokenHash]; ok {
		return &session, nil
	}
	return nil, nil
}

func (m *memSessionRepo) Touch(_ context.Context, id string) error { return nil }

func (m *memSessionRepo) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, session := range m.sessions {
		if session.ID == id {
			session.Revoked = true
			m.sessions[hash] = session
			return nil
		}
	}
	return repository.ErrNotFound
}

// fakeIdP hands out principals keyed by access token and registers signups.
type fakeIdP struct {
	mu         sync.Mutex
	byToken    map[string]*idp.Principal
	signupErr  error
	registered []idp.Principal
}

func newFakeIdP() *fakeIdP {
	return &fakeIdP{byToken: make(map[string]*idp.Principal)}
}

func (f *fakeIdP) GetUser(_ context.Context, accessToken string) (*idp.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if principal, ok := f.byToken[accessToken]; ok {
		return principal, nil
	}
	return nil, idp.ErrUnauthenticated
}

func (f *fakeIdP) SignUp(_ context.Context, email, password string, metadata map[string]any) (*idp.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	principal := &idp.Principal{ID: bunx.NewUUIDv7(), Email: email, Metadata: metadata}
	f.registered = append(f.registered, *principal)
	f.byToken["token-"+email] = principal
	return principal, nil
}
