package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-service/internal/model"
	"github.com/iliyamo/identity-service/internal/queue"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/retry"
	"github.com/iliyamo/identity-service/internal/utils"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 24 * time.Hour
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memUsers is an in-memory CredentialStore / UserDirectory.
type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[uint64]model.User{}} }

func (m *memUsers) Create(_ context.Context, u model.User) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Login == u.Login {
			return 0, repository.ErrIntegrityViolation
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.byID[u.ID] = u
	return u.ID, nil
}

func (m *memUsers) GetByLogin(_ context.Context, login string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Login == login {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id uint64, hash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash, u.UpdatedAt = hash, now
	m.byID[id] = u
	return nil
}

func (m *memUsers) List(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUsers) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type link struct{ user, role uint64 }

// memRoles is an in-memory RoleStore.
type memRoles struct {
	mu     sync.Mutex
	nextID uint64
	roles  map[uint64]string
	links  map[link]bool
}

func newMemRoles() *memRoles {
	return &memRoles{roles: map[uint64]string{}, links: map[link]bool{}}
}

func (m *memRoles) Create(_ context.Context, name string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.roles {
		if n == name {
			return model.Role{}, repository.ErrIntegrityViolation
		}
	}
	m.nextID++
	m.roles[m.nextID] = name
	return model.Role{ID: m.nextID, Name: name}, nil
}

func (m *memRoles) GetByID(_ context.Context, id uint64) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.roles[id]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return model.Role{ID: id, Name: n}, nil
}

func (m *memRoles) List(_ context.Context) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Role{}
	for id, n := range m.roles {
		out = append(out, model.Role{ID: id, Name: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRoles) Rename(_ context.Context, id uint64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return repository.ErrNotFound
	}
	m.roles[id] = name
	return nil
}

func (m *memRoles) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.roles, id)
	for l := range m.links {
		if l.role == id {
			delete(m.links, l)
		}
	}
	return nil
}

func (m *memRoles) NamesForUser(_ context.Context, userID uint64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for l := range m.links {
		if l.user == userID {
			out = append(out, m.roles[l.role])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRoles) IsAssigned(_ context.Context, userID, roleID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[link{userID, roleID}], nil
}

func (m *memRoles) Assign(_ context.Context, userID, roleID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[link{userID, roleID}] {
		return repository.ErrIntegrityViolation
	}
	m.links[link{userID, roleID}] = true
	return nil
}

func (m *memRoles) Unassign(_ context.Context, userID, roleID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.links[link{userID, roleID}] {
		return repository.ErrNotFound
	}
	delete(m.links, link{userID, roleID})
	return nil
}

// memHistory is an in-memory HistoryStore.  When err is set Append fails.
type memHistory struct {
	mu      sync.Mutex
	entries []model.LoginHistoryEntry
	err     error
}

func (m *memHistory) Append(_ context.Context, e model.LoginHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) ListByUser(_ context.Context, userID uint64, limit int) ([]model.LoginHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LoginHistoryEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AuthDatetime.After(out[j].AuthDatetime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.LoginEvent
	err    error
}

func (p *recordingPublisher) PublishLogin(_ context.Context, ev queue.LoginEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type env struct {
	mr        *miniredis.Miniredis
	kv        *repository.KVStore
	clock     *fakeClock
	users     *memUsers
	roles     *memRoles
	history   *memHistory
	events    *recordingPublisher
	hasher    *utils.PasswordHasher
	tokenizer *Tokenizer
	auth      *AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })

	policy := retry.Policy{
		Attempts: 2,
		Backoff:  retry.Backoff{Initial: time.Millisecond, Factor: 2, Max: 2 * time.Millisecond},
	}
	kv := repository.NewKVStore(rdb, "auth", policy, nil)

	hasher, err := utils.NewPasswordHasher(1000)
	require.NoError(t, err)

	clock := newFakeClock()
	signer := utils.NewSigner("test-secret", "identity-service", clock.Now)
	tok := NewTokenizer(kv, signer, testAccessTTL, testRefreshTTL)

	e := &env{
		mr:        mr,
		kv:        kv,
		clock:     clock,
		users:     newMemUsers(),
		roles:     newMemRoles(),
		history:   &memHistory{},
		events:    &recordingPublisher{},
		hasher:    hasher,
		tokenizer: tok,
	}
	e.auth = NewAuthService(AuthDeps{
		Users:     e.users,
		Roles:     e.roles,
		History:   e.history,
		Passwords: hasher,
		Tokens:    tok,
		Events:    e.events,
		Clock:     clock,
	})
	return e
}

// seedUser stores a user with a hashed password and returns its id.
func (e *env) seedUser(t *testing.T, login, password string, roles ...string) uint64 {
	t.Helper()
	ctx := context.Background()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	id, err := e.users.Create(ctx, model.User{Login: login, PasswordHash: hash})
	require.NoError(t, err)
	for _, name := range roles {
		r, err := e.roles.Create(ctx, name)
		require.NoError(t, err)
		require.NoError(t, e.roles.Assign(ctx, id, r.ID))
	}
	return id
}
