package ipchecker

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	checker, err := New("")
	require.NoError(t, err)
	assert.True(t, checker.IsTrustedSubnetEmpty())
	assert.False(t, checker.Check(net.ParseIP("127.0.0.1")))

	_, err = New("not-a-cidr")
	assert.Error(t, err)

	_, err = New("10.0.0.0/8", WithTrustedProxies([]string{"192.0.2.0/24", "proxy.local"}))
	assert.Error(t, err)
}

func TestGetClientIP(t *testing.T) {
	checker, err := New("10.0.0.0/8", WithTrustedProxies([]string{"192.0.2.0/24"}))
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "198.51.100.1:1234", want: "198.51.100.1"},
		{name: "x-real-ip from untrusted peer is ignored", headers: map[string]string{"X-Real-IP": "10.1.2.3"}, remote: "198.51.100.1:1234", want: "198.51.100.1"},
		{name: "x-forwarded-for from untrusted peer is ignored", headers: map[string]string{"X-Forwarded-For": "10.9.9.9"}, remote: "198.51.100.1:1234", want: "198.51.100.1"},
		{name: "x-real-ip via trusted proxy", headers: map[string]string{"X-Real-IP": "10.1.2.3"}, remote: "192.0.2.1:1234", want: "10.1.2.3"},
		{name: "x-forwarded-for via trusted proxy", headers: map[string]string{"X-Forwarded-For": "10.9.9.9"}, remote: "192.0.2.1:1234", want: "10.9.9.9"},
		{name: "x-forwarded-for skips proxy hops", headers: map[string]string{"X-Forwarded-For": "10.9.9.9, 192.0.2.7"}, remote: "192.0.2.1:1234", want: "10.9.9.9"},
		{name: "x-forwarded-for takes the hop the proxy saw", headers: map[string]string{"X-Forwarded-For": "10.9.9.9, 198.51.100.8"}, remote: "192.0.2.1:1234", want: "198.51.100.8"},
		{name: "garbage x-forwarded-for via trusted proxy", headers: map[string]string{"X-Forwarded-For": "garbage"}, remote: "192.0.2.1:1234", want: "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			ip, err := checker.GetClientIP(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip.String())
		})
	}
}

func TestTrustedOnly(t *testing.T) {
	checker, err := New("10.0.0.0/8", WithTrustedProxies([]string{"192.0.2.0/24"}))
	require.NoError(t, err)
	handler := checker.TrustedOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    int
	}{
		{name: "peer inside subnet", remote: "10.0.0.7:1234", want: http.StatusOK},
		{name: "peer outside subnet", remote: "198.51.100.1:1234", want: http.StatusForbidden},
		{name: "spoofed x-real-ip from untrusted peer", remote: "127.0.0.1:1234", headers: map[string]string{"X-Real-IP": "10.1.2.3"}, want: http.StatusForbidden},
		{name: "spoofed x-forwarded-for from untrusted peer", remote: "127.0.0.1:1234", headers: map[string]string{"X-Forwarded-For": "10.1.2.3"}, want: http.StatusForbidden},
		{name: "trusted proxy forwards client inside subnet", remote: "192.0.2.1:1234", headers: map[string]string{"X-Real-IP": "10.0.0.7"}, want: http.StatusOK},
		{name: "trusted proxy forwards client outside subnet", remote: "192.0.2.1:1234", headers: map[string]string{"X-Real-IP": "192.168.0.7"}, want: http.StatusForbidden},
		{name: "unparsable remote addr", remote: "not-an-address", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
