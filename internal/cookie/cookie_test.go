package cookie

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewSealer_ShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}

func TestSealOpen(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testSecret)
	require.NoError(t, err)

	sealed, err := s.Seal("sid", []byte("hello"))
	require.NoError(t, err)

	got, err := s.Open("sid", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	// bound to the cookie name
	_, err = s.Open("other", sealed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestOpen_Tampered(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{name: "not base64", value: "%%%"},
		{name: "too short", value: "AAAA"},
		{name: "garbage", value: strings.Repeat("A", 64)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Open("sid", tc.value)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestWriteRead(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testSecret)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, s.Write(rec, "sid", []byte("abc"), time.Minute, Options{Secure: true}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 60, cookies[0].MaxAge)
	assert.Equal(t, "/", cookies[0].Path)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	got, err := s.Read(req, "sid")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestWrite_InvalidMaxAge(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testSecret)
	require.NoError(t, err)

	assert.Error(t, s.Write(httptest.NewRecorder(), "sid", []byte("abc"), 0, Options{}))
}

func TestRead_Missing(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testSecret)
	require.NoError(t, err)

	_, err = s.Read(httptest.NewRequest(http.MethodGet, "/", nil), "sid")
	assert.ErrorIs(t, err, http.ErrNoCookie)
}

func TestClear(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	Clear(rec, "sid", Options{})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
