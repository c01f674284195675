package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"reflect"
	"runtime"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/validate"
	"github.com/MrEthical07/authcore/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Success messages. Request endpoints answer the same whether or not the
// account exists.
const (
	msgVerificationSent = "Verification code sent"
	msgPhoneVerified    = "Phone number verified successfully"
	msgResetRequested   = "If the account exists, a reset code has been sent to the registered phone number"
	msgPasswordReset    = "Password has been reset successfully"
	msgAlreadyLoggedIn  = "You're already logged in. You can not register an account."
)

type handlers struct {
	engine *authcore.Engine
	logger *zap.Logger
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type usernameRequest struct {
	Username string `json:"username" validate:"required,max=150"`
}

type confirmCodeRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Code     string `json:"code" validate:"required,max=32"`
}

type newPasswordRequest struct {
	Username    string `json:"username" validate:"required,max=150"`
	Code        string `json:"code" validate:"required,max=32"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

// Role is upper-cased before validation.
type roleChangeRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Role     string `json:"role" validate:"required,oneof=CUSTOMER EMPLOYEE CHEF"`
}

func (h *handlers) healthcheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// token accepts the OAuth2 password form or the same fields as JSON.
func (h *handlers) token(w http.ResponseWriter, r *http.Request) {
	var username, password string

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			middleware.WriteError(w, authcore.ErrInvalidRequest)
			return
		}
		username, password = r.PostForm.Get("username"), r.PostForm.Get("password")
	} else {
		var body struct {
			Username string `json:"username" validate:"max=150"`
			Password string `json:"password" validate:"max=1024"`
		}
		if !decode(w, r, &body) {
			return
		}
		username, password = body.Username, body.Password
	}

	res, err := h.engine.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, authcore.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "" {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: msgAlreadyLoggedIn})
		return
	}

	var in authcore.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	id, err := h.engine.Register(r.Context(), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authcore.ErrTokenInvalid)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// updateProfile takes a flat JSON object. Non-string values are passed on
// as their JSON text; the engine's allow-list decides what is accepted.
func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if !decode(w, r, &raw) {
		return
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = string(v)
		}
		fields[k] = s
	}

	token, _ := middleware.TokenFromContext(r.Context())
	id, err := h.engine.UpdateProfile(r.Context(), token, fields)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (h *handlers) requestVerification(w http.ResponseWriter, r *http.Request) {
	var in usernameRequest
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.RequestContactVerification(r.Context(), in.Username); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: msgVerificationSent})
}

func (h *handlers) confirmVerification(w http.ResponseWriter, r *http.Request) {
	var in confirmCodeRequest
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.ConfirmContactVerification(r.Context(), in.Username, in.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: msgPhoneVerified})
}

func (h *handlers) requestReset(w http.ResponseWriter, r *http.Request) {
	var in usernameRequest
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), in.Username); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: msgResetRequested})
}

func (h *handlers) confirmReset(w http.ResponseWriter, r *http.Request) {
	var in newPasswordRequest
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), in.Username, in.Code, in.NewPassword); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: msgPasswordReset})
}

func (h *handlers) changeRole(w http.ResponseWriter, r *http.Request) {
	var in roleChangeRequest
	if !decodeWith(w, r, &in, func() { in.Role = strings.ToUpper(strings.TrimSpace(in.Role)) }) {
		return
	}
	role, err := authcore.ParseRole(in.Role)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	token, _ := middleware.TokenFromContext(r.Context())
	id, err := h.engine.ChangeRole(r.Context(), token, in.Username, role)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// debug returns coarse runtime figures only.
func (h *handlers) debug(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"os":         runtime.GOOS,
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]uint64{
			"heap_alloc_bytes": mem.HeapAlloc,
			"sys_bytes":        mem.Sys,
		},
	})
}

// decode reads a JSON body into v and, for structs, checks its validate
// tags. A failed rule is answered with the field it names.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeWith(w, r, v, nil)
}

// decodeWith runs prepare between decoding and validation.
func decodeWith(w http.ResponseWriter, r *http.Request, v any, prepare func()) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, authcore.ErrInvalidRequest)
		return false
	}
	if prepare != nil {
		prepare()
	}
	if reflect.Indirect(reflect.ValueOf(v)).Kind() != reflect.Struct {
		return true
	}
	if err := validate.Struct(v); err != nil {
		var ve *validate.Error
		if errors.As(err, &ve) {
			middleware.WriteError(w, &authcore.FieldError{Field: ve.Field, Reason: ve.Rule})
		} else {
			middleware.WriteError(w, authcore.ErrInvalidRequest)
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
