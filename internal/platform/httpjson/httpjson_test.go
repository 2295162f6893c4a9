package httpjson

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/backend/internal/platform/autherr"
)

func TestStatus(t *testing.T) {
	cases := map[autherr.Kind]int{
		autherr.KindValidation:            http.StatusBadRequest,
		autherr.KindDuplicateIdentity:     http.StatusConflict,
		autherr.KindInvalidCredentials:    http.StatusUnauthorized,
		autherr.KindAccountLocked:         http.StatusLocked,
		autherr.KindAccountInactive:       http.StatusForbidden,
		autherr.KindTokenInvalid:          http.StatusUnauthorized,
		autherr.KindTokenExpired:          http.StatusUnauthorized,
		autherr.KindTokenInvalidOrExpired: http.StatusBadRequest,
		autherr.KindAccountLinkError:      http.StatusBadGateway,
		autherr.KindRateLimited:           http.StatusTooManyRequests,
		autherr.KindInternal:              http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, Status(k), k.String())
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestError_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop(), autherr.Validation(map[string]string{"email": "invalid email format"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	d := decodeBody(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", d.Code)
	assert.Equal(t, "invalid email format", d.Fields["email"])
}

func TestError_LockedSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, autherr.Locked(time.Now().Add(90*time.Minute)))

	assert.Equal(t, http.StatusLocked, rec.Code)
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 5400, secs, 5)
	d := decodeBody(t, rec)
	assert.Equal(t, "ACCOUNT_LOCKED", d.Code)
	require.NotNil(t, d.LockedUntil)
}

func TestError_InternalHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop(), errors.New("pq: connection refused to 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Equal(t, "INTERNAL", decodeBody(t, rec).Code)
}

func TestError_TokenCodesAreDistinct(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code string
	}{
		{autherr.ErrTokenInvalid, "TOKEN_INVALID"},
		{autherr.ErrTokenExpired, "TOKEN_EXPIRED"},
	} {
		rec := httptest.NewRecorder()
		Error(rec, nil, tc.err)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, tc.code, decodeBody(t, rec).Code)
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Email string `json:"email"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
	require.NoError(t, Decode(r, &v))
	assert.Equal(t, "a@x.com", v.Email)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, Decode(r, &v))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{oops"))
	assert.Equal(t, autherr.KindValidation, autherr.KindOf(Decode(r, &v)))
}
