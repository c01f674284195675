package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
)

type errorBody struct {
	Detail     string `json:"detail"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// WriteError writes err as {"detail": ...} with the status from
// authcore.PublicError. Lockouts also set Retry-After in whole seconds.
func WriteError(w http.ResponseWriter, err error) {
	status, msg := authcore.PublicError(err)
	body := errorBody{Detail: msg}

	if d, ok := authcore.RetryAfter(err); ok {
		secs := int64(d.Seconds())
		if secs < 1 {
			secs = 1
		}
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
