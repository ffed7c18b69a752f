package command

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/waterbird-i/wbapi-backend/shared/metrics"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/shared/security"
	"github.com/waterbird-i/wbapi-backend/shared/token"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/repository"
)

// memUsers is an in-memory UserStore that enforces the same unique keys as the schema.
type memUsers struct {
	mu          sync.Mutex
	rows        map[int64]*models.User
	nextID      int64
	createCalls int
	checkDelay  time.Duration
	createErr   error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[int64]*models.User)}
}

func (m *memUsers) Create(_ context.Context, u *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return 0, m.createErr
	}
	for _, row := range m.rows {
		if u.UserAccount != "" && row.UserAccount == u.UserAccount {
			return 0, repository.ErrDuplicateAccount
		}
		if u.Email != "" && row.Email == u.Email {
			return 0, repository.ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	m.rows[u.ID] = &stored
	return u.ID, nil
}

func (m *memUsers) ExistsByAccount(_ context.Context, account string) (bool, error) {
	found := m.match(func(u *models.User) bool { return u.UserAccount == account }) != nil
	// widen the check-then-insert window
	time.Sleep(m.checkDelay)
	return found, nil
}

func (m *memUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	return m.match(func(u *models.User) bool { return u.Email == email }) != nil, nil
}

func (m *memUsers) FindByAccountAndPassword(_ context.Context, account, digest string) (*models.User, error) {
	return m.one(func(u *models.User) bool { return u.UserAccount == account && u.UserPassword == digest })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.one(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) FindByAccessKey(_ context.Context, accessKey string) (*models.User, error) {
	return m.one(func(u *models.User) bool { return u.AccessKey == accessKey })
}

func (m *memUsers) UpdateProfile(_ context.Context, id int64, p repository.ProfilePatch) (*models.User, error) {
	return m.update(id, func(u *models.User) bool {
		if p.UserName != nil {
			u.UserName = *p.UserName
		}
		if p.UserAvatar != nil {
			u.UserAvatar = *p.UserAvatar
		}
		if p.UserRole != nil {
			u.UserRole = *p.UserRole
		}
		return true
	})
}

func (m *memUsers) UpdateKeys(_ context.Context, id int64, account string, keys models.DevKeyView) (*models.User, error) {
	return m.update(id, func(u *models.User) bool {
		if u.UserAccount != account {
			return false
		}
		u.AccessKey = keys.AccessKey
		u.SecretKey = keys.SecretKey
		return true
	})
}

func (m *memUsers) UpdateAvatar(_ context.Context, id int64, avatarURL string) (*models.User, error) {
	return m.update(id, func(u *models.User) bool {
		u.UserAvatar = avatarURL
		return true
	})
}

func (m *memUsers) update(id int64, apply func(u *models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || !apply(row) {
		return nil, repository.ErrNotFound
	}
	row.UpdatedAt = time.Now()
	out := *row
	return &out, nil
}

func (m *memUsers) match(pred func(u *models.User) bool) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if pred(row) {
			out := *row
			return &out
		}
	}
	return nil
}

func (m *memUsers) one(pred func(u *models.User) bool) (*models.User, error) {
	if u := m.match(pred); u != nil {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) get(id int64) *models.User {
	return m.match(func(u *models.User) bool { return u.ID == id })
}

type publishedEvent struct {
	eventType string
	data      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType, data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

type fakeUploader struct {
	url string
	err error
	got string
}

func (f *fakeUploader) Upload(_ context.Context, _ int64, fileName string, _ int64, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, _ := io.ReadAll(body)
	f.got = fileName + ":" + string(b)
	return f.url, nil
}

const testTTL = 30 * time.Minute

type harness struct {
	svc       *AccountCommandService
	users     *memUsers
	sessions  *repository.SessionRepository
	mr        *miniredis.Miniredis
	issuer    *token.Issuer
	hasher    *security.PasswordHasher
	publisher *recordingPublisher
	uploader  *fakeUploader
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	issuer, err := token.NewIssuer("test-secret", testTTL)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		users:     newMemUsers(),
		sessions:  repository.NewSessionRepository(client, testTTL),
		mr:        mr,
		issuer:    issuer,
		hasher:    security.NewPasswordHasher("salt", security.ArgonParams{Time: 1, Memory: 1024, Threads: 1}),
		publisher: &recordingPublisher{},
		uploader:  &fakeUploader{url: "http://cdn.local/avatars/1.png"},
		metrics:   metrics.New(),
	}
	h.svc = NewAccountCommandService(Deps{
		Users:     h.users,
		Sessions:  h.sessions,
		Codes:     repository.NewCodeRepository(client),
		Tokens:    issuer,
		Hasher:    h.hasher,
		Keys:      security.NewKeyGenerator("salt"),
		Avatars:   h.uploader,
		Publisher: h.publisher,
		Metrics:   h.metrics,
	})
	return h
}

func (h *harness) sessionKey(id int64) string {
	return repository.SessionKeyPrefix + strconv.FormatInt(id, 10)
}
