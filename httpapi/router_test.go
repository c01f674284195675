package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/repository/memory"
)

const testPassword = "Sturdy-Kettle-93!"

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()
	return nil
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("no code dispatched")
	}
	return o.msgs[len(o.msgs)-1].Code
}

type server struct {
	handler http.Handler
	repo    *memory.Repository
	out     *outbox
}

func newServer(t *testing.T, env authcore.Environment, policies Policies) *server {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.Environment = env
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnumerationDelayMin = 0
	cfg.Security.EnumerationDelayMax = 0

	s := &server{repo: memory.New(), out: &outbox{}}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRepository(s.repo).
		WithDispatcher(s.out).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	s.handler, err = NewRouter(Config{Engine: engine, Policies: policies})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return s
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *strings.Reader
	if body == nil {
		payload = strings.NewReader("")
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payload = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, payload)
	req.RemoteAddr = "192.0.2.10:4000"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *server) register(t *testing.T, username, phone string, role authcore.Role) {
	t.Helper()

	rr := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username":     username,
		"password":     testPassword,
		"first_name":   "Test",
		"last_name":    "User",
		"phone_number": phone,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, rr.Code, rr.Body.String())
	}
	if role != authcore.RoleCustomer {
		id, err := s.repo.FindByIdentifier(context.Background(), username)
		if err != nil {
			t.Fatalf("FindByIdentifier: %v", err)
		}
		if err := s.repo.UpdateRole(context.Background(), id.ID, id.Role, role, time.Now()); err != nil {
			t.Fatalf("UpdateRole: %v", err)
		}
	}
}

func (s *server) token(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.RemoteAddr = "192.0.2.10:4000"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *server) login(t *testing.T, username string) string {
	t.Helper()

	rr := s.token(t, username, testPassword)
	if rr.Code != http.StatusOK {
		t.Fatalf("token %s: status %d body %s", username, rr.Code, rr.Body.String())
	}
	var res authcore.TokenResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return res.AccessToken
}

func detail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Detail
}

func TestTokenFlow(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	token := s.login(t, "alice")

	rr := s.do(t, http.MethodGet, "/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/me status %d", rr.Code)
	}
	var me map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me["username"] != "alice" {
		t.Fatalf("unexpected /me body %v", me)
	}
	if _, leaked := me["PasswordHash"]; leaked {
		t.Fatal("password hash serialized")
	}
}

func TestTokenFailuresLookAlike(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	wrong := s.token(t, "alice", "not-the-password")
	unknown := s.token(t, "nobody", "not-the-password")

	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("statuses %d %d", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", wrong.Body.String(), unknown.Body.String())
	}
	if wrong.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatal("missing WWW-Authenticate")
	}
}

func TestTokenLockoutSetsRetryAfter(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	for i := 0; i < 5; i++ {
		if rr := s.token(t, "alice", "wrong"); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i+1, rr.Code)
		}
	}
	rr := s.token(t, "alice", testPassword)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while locked, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestRegisterRejections(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	rr := s.do(t, http.MethodPost, "/register", "some-token", map[string]string{"username": "bob"})
	if rr.Code != http.StatusBadRequest || detail(t, rr) != msgAlreadyLoggedIn {
		t.Fatalf("authenticated register: status %d", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "password": testPassword, "phone_number": "+15550199",
	})
	if rr.Code != http.StatusBadRequest || detail(t, rr) != authcore.MsgRegistrationFailed {
		t.Fatalf("duplicate register: status %d", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "bob", "password": "short", "phone_number": "+15550200",
	})
	if rr.Code != http.StatusBadRequest || !strings.HasPrefix(detail(t, rr), "Password does not meet requirements") {
		t.Fatalf("weak password: status %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	if out.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", out.Code)
	}
}

func TestProfileAllowList(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)
	token := s.login(t, "alice")

	rr := s.do(t, http.MethodPatch, "/profile", token, map[string]any{"first_name": "Al", "role": "CHEF"})
	if rr.Code != http.StatusBadRequest || detail(t, rr) != "Fields not allowed: role" {
		t.Fatalf("status %d", rr.Code)
	}

	rr = s.do(t, http.MethodPut, "/profile", token, map[string]any{"first_name": "Al"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status %d body %s", rr.Code, rr.Body.String())
	}
	id, _ := s.repo.FindByIdentifier(context.Background(), "alice")
	if id.FirstName != "Al" || id.Role != authcore.RoleCustomer {
		t.Fatalf("unexpected stored identity %+v", id)
	}

	if rr := s.do(t, http.MethodPut, "/profile", "", map[string]any{"first_name": "X"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous update: status %d", rr.Code)
	}
}

func TestPhoneVerificationRoundTrip(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	if rr := s.do(t, http.MethodPost, "/verify-phone/request", "", map[string]string{"username": "alice"}); rr.Code != http.StatusOK {
		t.Fatalf("request status %d", rr.Code)
	}
	code := s.out.lastCode(t)

	rr := s.do(t, http.MethodPost, "/verify-phone/confirm", "", map[string]string{"username": "alice", "code": code})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status %d body %s", rr.Code, rr.Body.String())
	}
	rr = s.do(t, http.MethodPost, "/verify-phone/confirm", "", map[string]string{"username": "alice", "code": code})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("replayed code: status %d", rr.Code)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	known := s.do(t, http.MethodPost, "/reset-password", "", map[string]string{"username": "alice"})
	unknown := s.do(t, http.MethodPost, "/reset-password", "", map[string]string{"username": "ghost"})
	if known.Code != http.StatusOK || unknown.Code != http.StatusOK || known.Body.String() != unknown.Body.String() {
		t.Fatalf("reset request responses differ: %d %q / %d %q", known.Code, known.Body.String(), unknown.Code, unknown.Body.String())
	}

	const newPassword = "Brand-New-Lantern-77!"
	rr := s.do(t, http.MethodPost, "/reset-password/new-password", "", map[string]string{
		"username": "alice", "code": s.out.lastCode(t), "new_password": newPassword,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status %d body %s", rr.Code, rr.Body.String())
	}
	if rr := s.token(t, "alice", newPassword); rr.Code != http.StatusOK {
		t.Fatalf("login with new password: status %d", rr.Code)
	}
}

func TestChangeRoleRoute(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "chef", "+15550100", authcore.RoleChef)
	s.register(t, "bob", "+15550200", authcore.RoleCustomer)

	chef := s.login(t, "chef")
	rr := s.do(t, http.MethodPut, "/users/update_role", chef, map[string]string{"username": "bob", "role": "employee"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rr.Code, rr.Body.String())
	}

	bob := s.login(t, "bob")
	rr = s.do(t, http.MethodPut, "/users/update_role", bob, map[string]string{"username": "bob", "role": "CHEF"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("self change: status %d", rr.Code)
	}

	rr = s.do(t, http.MethodPut, "/users/update_role", chef, map[string]string{"username": "bob", "role": "ADMIN"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: status %d", rr.Code)
	}
}

func TestRequestBodiesAreValidated(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})
	s.register(t, "alice", "+15550100", authcore.RoleCustomer)

	cases := []struct {
		path string
		body map[string]string
		want string
	}{
		{"/verify-phone/request", map[string]string{}, "Invalid username"},
		{"/verify-phone/confirm", map[string]string{"username": "alice", "code": strings.Repeat("9", 33)}, "Invalid code"},
		{"/reset-password/new-password", map[string]string{"username": "alice", "code": "ABCD2345"}, "Invalid new_password"},
		{"/register", map[string]string{"username": "bob", "password": testPassword}, "Invalid phone_number"},
	}
	for _, tc := range cases {
		rr := s.do(t, http.MethodPost, tc.path, "", tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", tc.path, rr.Code)
		}
		if got := detail(t, rr); got != tc.want {
			t.Fatalf("%s: detail %q, want %q", tc.path, got, tc.want)
		}
	}

	if len(s.out.msgs) != 0 {
		t.Fatalf("rejected requests must not dispatch codes, got %d", len(s.out.msgs))
	}
}

func TestDebugRouteOnlyInDevelopment(t *testing.T) {
	dev := newServer(t, authcore.EnvDevelopment, Policies{})
	dev.register(t, "chef", "+15550100", authcore.RoleChef)
	dev.register(t, "dan", "+15550400", authcore.RoleCustomer)

	if rr := dev.do(t, http.MethodGet, "/debug", dev.login(t, "chef"), nil); rr.Code != http.StatusOK {
		t.Fatalf("chef in development: status %d", rr.Code)
	}
	if rr := dev.do(t, http.MethodGet, "/debug", dev.login(t, "dan"), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("customer in development: status %d", rr.Code)
	}

	prod := newServer(t, authcore.EnvTesting, Policies{})
	prod.register(t, "chef", "+15550100", authcore.RoleChef)
	if rr := prod.do(t, http.MethodGet, "/debug", prod.login(t, "chef"), nil); rr.Code != http.StatusNotFound {
		t.Fatalf("outside development: status %d", rr.Code)
	}
}

func TestRouteThrottle(t *testing.T) {
	policies := DefaultPolicies()
	policies.ResetRequest = middleware.Policy{Name: "reset_request", Limit: 2, Window: time.Hour}
	s := newServer(t, authcore.EnvTesting, policies)

	for i := 0; i < 2; i++ {
		if rr := s.do(t, http.MethodPost, "/reset-password", "", map[string]string{"username": "ghost"}); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rr.Code)
		}
	}
	rr := s.do(t, http.MethodPost, "/reset-password", "", map[string]string{"username": "ghost"})
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected throttled request, got %d", rr.Code)
	}
}

func TestSecurityHeadersAndHealth(t *testing.T) {
	s := newServer(t, authcore.EnvTesting, Policies{})

	rr := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
}

func TestNewRouterRejectsBadPolicy(t *testing.T) {
	policies := DefaultPolicies()
	policies.Token.Limit = 0
	engine, err := authcore.New().
		WithConfig(func() authcore.Config {
			c := authcore.DefaultConfig()
			c.Environment = authcore.EnvTesting
			c.Password.Memory = 8 * 1024
			return c
		}()).
		WithRepository(memory.New()).
		WithDispatcher(notify.Func(func(context.Context, notify.Message) error { return nil })).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := NewRouter(Config{Engine: engine, Policies: policies}); err == nil {
		t.Fatal("expected invalid policy to be rejected")
	}
	if _, err := NewRouter(Config{}); err == nil {
		t.Fatal("expected missing engine to be rejected")
	}
}
