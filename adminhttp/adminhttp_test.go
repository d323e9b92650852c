package adminhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStartIssuesXSRFCookie(t *testing.T) {
	s := New("ws://localhost:8080/ws")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/start", nil)

	s.Handler()(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	assert.Len(t, cookies, 1)
	assert.Equal(t, xsrfCookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestPostStartRejectsMissingCookie(t *testing.T) {
	s := New("ws://localhost:8080/ws")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/start", nil)

	s.Handler()(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPostStartRejectsMismatchedToken(t *testing.T) {
	s := New("ws://localhost:8080/ws")

	getRR := httptest.NewRecorder()
	s.Handler()(getRR, httptest.NewRequest(http.MethodGet, "/start", nil))
	cookie := getRR.Result().Cookies()[0]

	postRR := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/start", nil)
	postReq.AddCookie(cookie)
	postReq.Header.Set("X-XSRF-Token", "wrong-token")

	s.Handler()(postRR, postReq)

	assert.Equal(t, http.StatusForbidden, postRR.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New("ws://localhost:8080/ws")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/start", nil)

	s.Handler()(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
