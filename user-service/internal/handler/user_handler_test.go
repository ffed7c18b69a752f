package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/cqrs"
	"github.com/waterbird-i/wbapi-backend/shared/middleware"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/command"
)

// ---- mock implementations ----

type mockAccountCommander struct {
	registerFn      func(cqrs.RegisterCommand) (int64, error)
	registerEmailFn func(cqrs.EmailRegisterCommand) (int64, error)
	loginFn         func(cqrs.LoginCommand) (*command.LoginResult, error)
	loginEmailFn    func(cqrs.EmailLoginCommand) (*command.LoginResult, error)
	logoutFn        func(cqrs.LogoutCommand) error
	updateFn        func(cqrs.UpdateUserCommand) error
	rotateFn        func(cqrs.RotateKeysCommand) (*models.DevKeyView, error)
	avatarFn        func(cqrs.UpdateAvatarCommand) (string, error)
}

var errNotConfigured = fmt.Errorf("not configured")

func (m *mockAccountCommander) Register(_ context.Context, cmd cqrs.RegisterCommand) (int64, error) {
	if m.registerFn != nil {
		return m.registerFn(cmd)
	}
	return 0, errNotConfigured
}
func (m *mockAccountCommander) RegisterByEmail(_ context.Context, cmd cqrs.EmailRegisterCommand) (int64, error) {
	if m.registerEmailFn != nil {
		return m.registerEmailFn(cmd)
	}
	return 0, errNotConfigured
}
func (m *mockAccountCommander) Login(_ context.Context, cmd cqrs.LoginCommand) (*command.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockAccountCommander) LoginByEmail(_ context.Context, cmd cqrs.EmailLoginCommand) (*command.LoginResult, error) {
	if m.loginEmailFn != nil {
		return m.loginEmailFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockAccountCommander) Logout(_ context.Context, cmd cqrs.LogoutCommand) error {
	if m.logoutFn != nil {
		return m.logoutFn(cmd)
	}
	return errNotConfigured
}
func (m *mockAccountCommander) UpdateUser(_ context.Context, cmd cqrs.UpdateUserCommand) error {
	if m.updateFn != nil {
		return m.updateFn(cmd)
	}
	return errNotConfigured
}
func (m *mockAccountCommander) RotateKeys(_ context.Context, cmd cqrs.RotateKeysCommand) (*models.DevKeyView, error) {
	if m.rotateFn != nil {
		return m.rotateFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockAccountCommander) UpdateAvatar(_ context.Context, cmd cqrs.UpdateAvatarCommand) (string, error) {
	if m.avatarFn != nil {
		return m.avatarFn(cmd)
	}
	return "", errNotConfigured
}

// ---- helpers ----

var testUser = &models.User{
	ID: 7, UserAccount: "alice", UserPassword: "digest", AccessKey: "ak-1", SecretKey: "sk-1",
	UserName: "Alice", UserRole: models.RoleUser, CreatedAt: time.Now(), UpdatedAt: time.Now(),
}

// fakeRequireLogin authenticates any request carrying "Bearer good".
func fakeRequireLogin(c *gin.Context) {
	if middleware.TokenFromRequest(c) != "good" {
		middleware.RespondWithAppError(c, apperr.NotLogin())
		c.Abort()
		return
	}
	c.Set("userId", testUser.ID)
	c.Set("loginUser", testUser)
	c.Next()
}

func newTestRouter(cmds AccountCommander) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewUserHandler(cmds, time.Hour, false).RegisterRoutes(r, fakeRequireLogin)
	return r
}

func doRequest(router *gin.Engine, method, url string, body interface{}, authed bool, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer good")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) middleware.BaseResponse {
	t.Helper()
	var resp middleware.BaseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body %q: %v", w.Body.String(), err)
	}
	return resp
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---- tests ----

func TestRegister(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		registerFn     func(cqrs.RegisterCommand) (int64, error)
		expectedStatus int
		expectedCode   int
	}{
		{
			name: "success - returns new id",
			body: map[string]string{"userAccount": "alice", "userPassword": "password123", "checkPassword": "password123"},
			registerFn: func(cmd cqrs.RegisterCommand) (int64, error) {
				if cmd.UserAccount != "alice" || cmd.CheckPassword != "password123" {
					return 0, fmt.Errorf("unexpected command %+v", cmd)
				}
				return 42, nil
			},
			expectedStatus: http.StatusOK,
			expectedCode:   0,
		},
		{
			name:           "bad request - missing fields",
			body:           map[string]string{"userAccount": "alice"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   40000,
		},
		{
			name:           "bad request - duplicate account",
			body:           map[string]string{"userAccount": "alice", "userPassword": "password123", "checkPassword": "password123"},
			registerFn:     func(cqrs.RegisterCommand) (int64, error) { return 0, apperr.Params("account already exists") },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   40000,
		},
		{
			name:           "system error - store failure",
			body:           map[string]string{"userAccount": "alice", "userPassword": "password123", "checkPassword": "password123"},
			registerFn:     func(cqrs.RegisterCommand) (int64, error) { return 0, apperr.System("registration failed", nil) },
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   50000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockAccountCommander{registerFn: tt.registerFn})
			w := doRequest(router, http.MethodPost, "/v1/users/register", tt.body, false)
			if w.Code != tt.expectedStatus {
				t.Fatalf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if resp := envelope(t, w); resp.Code != tt.expectedCode {
				t.Errorf("[%s] expected code %d, got %d", tt.name, tt.expectedCode, resp.Code)
			}
		})
	}
}

func TestRegisterByEmail(t *testing.T) {
	cmds := &mockAccountCommander{registerEmailFn: func(cmd cqrs.EmailRegisterCommand) (int64, error) {
		if cmd.Email != "bob@example.com" || cmd.Code != "123456" {
			return 0, apperr.Params("email or verification code incorrect")
		}
		return 9, nil
	}}
	router := newTestRouter(cmds)

	w := doRequest(router, http.MethodPost, "/v1/users/register/email", map[string]string{"emailNum": "bob@example.com", "emailCaptcha": "123456"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/v1/users/register/email", map[string]string{"emailNum": "not-an-email", "emailCaptcha": "123456"}, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d", w.Code)
	}
}

func TestLogin_SetsCookieAndRedacts(t *testing.T) {
	cmds := &mockAccountCommander{loginFn: func(cmd cqrs.LoginCommand) (*command.LoginResult, error) {
		if cmd.UserPassword != "password123" {
			return nil, apperr.Params("account or password incorrect")
		}
		return &command.LoginResult{Token: "tok-1", User: models.ToLoginUserView(testUser)}, nil
	}}
	router := newTestRouter(cmds)

	w := doRequest(router, http.MethodPost, "/v1/users/login", map[string]string{"userAccount": "alice", "userPassword": "password123"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	cookie := findCookie(w, middleware.TokenCookie)
	if cookie == nil || cookie.Value != "tok-1" || cookie.Path != "/" || !cookie.HttpOnly {
		t.Fatalf("unexpected token cookie: %+v", cookie)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"token":"tok-1"`) || !strings.Contains(body, `"userAccount":"alice"`) {
		t.Errorf("missing login fields: %s", body)
	}
	if strings.Contains(body, "digest") || strings.Contains(body, "sk-1") {
		t.Errorf("login response leaks secrets: %s", body)
	}

	w = doRequest(router, http.MethodPost, "/v1/users/login", map[string]string{"userAccount": "alice", "userPassword": "wrongpass1"}, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if findCookie(w, middleware.TokenCookie) != nil {
		t.Error("failed login must not set a cookie")
	}
}

func TestLoginByEmail(t *testing.T) {
	cmds := &mockAccountCommander{loginEmailFn: func(cmd cqrs.EmailLoginCommand) (*command.LoginResult, error) {
		return &command.LoginResult{Token: "tok-2", User: models.ToLoginUserView(testUser)}, nil
	}}
	router := newTestRouter(cmds)

	w := doRequest(router, http.MethodPost, "/v1/users/login/email", map[string]string{"emailNum": "alice@example.com", "emailCaptcha": "000000"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if c := findCookie(w, middleware.TokenCookie); c == nil || c.Value != "tok-2" {
		t.Fatalf("unexpected cookie %+v", c)
	}
}

func TestLogout(t *testing.T) {
	var got cqrs.LogoutCommand
	cmds := &mockAccountCommander{logoutFn: func(cmd cqrs.LogoutCommand) error {
		got = cmd
		if !cmd.HasIndicator {
			return apperr.Operation("not logged in")
		}
		return nil
	}}
	router := newTestRouter(cmds)

	w := doRequest(router, http.MethodPost, "/v1/users/logout", nil, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without cookie, got %d", w.Code)
	}
	if resp := envelope(t, w); resp.Code != 50001 {
		t.Errorf("expected OPERATION_ERROR code, got %d", resp.Code)
	}

	w = doRequest(router, http.MethodPost, "/v1/users/logout", nil, false, &http.Cookie{Name: middleware.TokenCookie, Value: "tok-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if got.Token != "tok-1" || !got.HasIndicator {
		t.Errorf("unexpected logout command %+v", got)
	}
	if c := findCookie(w, middleware.TokenCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("cookie not cleared: %+v", c)
	}
}

func TestCurrent(t *testing.T) {
	router := newTestRouter(&mockAccountCommander{})

	w := doRequest(router, http.MethodGet, "/v1/users/current", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/v1/users/current", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "sk-1") {
		t.Errorf("current user leaks secret key: %s", w.Body.String())
	}
}

func TestUpdateUser(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		updateFn       func(cqrs.UpdateUserCommand) error
		expectedStatus int
	}{
		{
			name: "success - update own name",
			body: map[string]interface{}{"id": 7, "userName": "Alice B."},
			updateFn: func(cmd cqrs.UpdateUserCommand) error {
				if cmd.Caller.ID != 7 || cmd.TargetID != 7 || *cmd.UserName != "Alice B." || cmd.UserRole != nil {
					return fmt.Errorf("unexpected command %+v", cmd)
				}
				return nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "forbidden - another user's record",
			body:           map[string]interface{}{"id": 8, "userName": "x"},
			updateFn:       func(cqrs.UpdateUserCommand) error { return apperr.NoAuth() },
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "bad request - unknown role",
			body:           map[string]interface{}{"id": 7, "userRole": "root"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - missing id",
			body:           map[string]interface{}{"userName": "x"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockAccountCommander{updateFn: tt.updateFn})
			w := doRequest(router, http.MethodPost, "/v1/users/update", tt.body, true)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestRotateKeys(t *testing.T) {
	cmds := &mockAccountCommander{rotateFn: func(cmd cqrs.RotateKeysCommand) (*models.DevKeyView, error) {
		return &models.DevKeyView{AccessKey: "ak-2", SecretKey: "sk-2"}, nil
	}}
	router := newTestRouter(cmds)

	if w := doRequest(router, http.MethodPost, "/v1/users/keys", nil, false); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w := doRequest(router, http.MethodPost, "/v1/users/keys", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"secretKey":"sk-2"`) {
		t.Errorf("rotation must return the new secret: %s", w.Body.String())
	}
}

func TestUpdateAvatar(t *testing.T) {
	var got cqrs.UpdateAvatarCommand
	cmds := &mockAccountCommander{avatarFn: func(cmd cqrs.UpdateAvatarCommand) (string, error) {
		got = cmd
		return "http://cdn.local/avatars/a.png", nil
	}}
	router := newTestRouter(cmds)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "me.png")
	part.Write([]byte("png-bytes"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, "/v1/users/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}
	if got.FileName != "me.png" || got.Size != int64(len("png-bytes")) || got.Caller.ID != 7 {
		t.Errorf("unexpected avatar command %+v", got)
	}

	// no file part
	w = doRequest(router, http.MethodPost, "/v1/users/avatar", nil, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", w.Code)
	}
}
