package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
	"github.com/KoushikPanda1729/client-ui/internal/platform/requestctx"
	"github.com/KoushikPanda1729/client-ui/internal/session"
)

const maxBodySize = 16 * 1024

var errNoSession = httpx.NewError("session_unavailable", genericMessage, http.StatusInternalServerError)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, status, payload)
}

// currentSession returns the request's session or writes an error.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, errNoSession)
		return nil, false
	}
	return sess, true
}

// signedIn returns the session and its user or writes a 401.
func signedIn(w http.ResponseWriter, r *http.Request) (*session.Session, domain.User, *http.Request, bool) {
	sess, ok := currentSession(w, r)
	if !ok {
		return nil, domain.User{}, r, false
	}
	user, ok := sess.User()
	if !ok || !sess.Tokens().Authenticated() {
		httpx.WriteError(r.Context(), w, errUnauthenticated)
		return nil, domain.User{}, r, false
	}
	r = r.WithContext(requestctx.WithUserID(r.Context(), user.IDString()))
	return sess, user, r, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, maxBodySize, dst); err != nil {
		writeBodyError(w, r, err)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// decodeOptionalBody decodes a JSON body when one is present.
func decodeOptionalBody(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := httpx.DecodeJSON(r, maxBodySize, dst)
	if errors.Is(err, httpx.ErrEmptyBody) {
		return nil
	}
	return err
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(r.Context(), w, httpx.BodyError(err))
}
