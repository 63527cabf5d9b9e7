package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"feedcast/internal/apperr"
)

type payload struct {
	Email string `json:"email" validate:"required,email"`
}

func TestDecode(t *testing.T) {
	var p payload
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com"}`))
	assert.NoError(t, Decode(r, &p))
	assert.Equal(t, "a@example.com", p.Email)

	for _, body := range []string{`{"email":"nope"}`, `{`, `{"email":"a@example.com","admin":true}`} {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := Decode(r, &payload{})
		assert.Equal(t, KeyInvalid, apperr.KeyOf(err), body)
	}
}

func TestError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil)

	rr := httptest.NewRecorder()
	Error(rr, r, apperr.NotFound("jobs.notFound"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"errorKey":"jobs.notFound"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	Error(rr, r, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"errorKey":"common.internal"}`, rr.Body.String())
}
