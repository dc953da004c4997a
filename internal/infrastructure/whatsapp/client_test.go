package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medconnect-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, reply response, seen *map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			body := map[string]string{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["path"] = r.URL.Path
			body["apikey"] = r.Header.Get("apikey")
			*seen = body
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_PostsPhone(t *testing.T) {
	var seen map[string]string
	srv := newServer(t, http.StatusOK, response{Success: true}, &seen)

	require.NoError(t, NewClient(srv.URL+"/", "key-1").Send(context.Background(), "+971500000001"))
	assert.Equal(t, "/send", seen["path"])
	assert.Equal(t, "+971500000001", seen["phone"])
	assert.Equal(t, "key-1", seen["apikey"])
}

func TestSend_RejectedIsError(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, response{Error: "unsupported number"}, nil)
	assert.Error(t, NewClient(srv.URL, "").Send(context.Background(), "+1"))
}

func TestSend_ServerErrorIsError(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway, response{}, nil)
	assert.Error(t, NewClient(srv.URL, "").Send(context.Background(), "+1"))
}

func TestVerify_Outcomes(t *testing.T) {
	cases := []struct {
		name  string
		reply response
		want  error
	}{
		{"no pending", response{Error: "No pending verification for phone"}, domain.ErrNoPendingVerification},
		{"expired", response{Error: "code expired"}, domain.ErrInvalidOrExpiredCode},
		{"wrong code", response{Error: "invalid code"}, domain.ErrInvalidOrExpiredCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, http.StatusOK, tc.reply, nil)
			_, err := NewClient(srv.URL, "").Verify(context.Background(), "+1", "123456")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVerify_Success(t *testing.T) {
	var seen map[string]string
	srv := newServer(t, http.StatusOK, response{Success: true, Session: "s-1"}, &seen)

	session, err := NewClient(srv.URL, "").Verify(context.Background(), "+1", "123456")
	require.NoError(t, err)
	assert.Equal(t, "s-1", session)
	assert.Equal(t, "123456", seen["code"])
}

func TestVerify_TransportFailureIsDeliveryError(t *testing.T) {
	srv := newServer(t, http.StatusOK, response{}, nil)
	srv.Close()
	_, err := NewClient(srv.URL, "").Verify(context.Background(), "+1", "123456")
	assert.ErrorIs(t, err, domain.ErrChannelDelivery)
}

func TestVerify_SendsUserData(t *testing.T) {
	var body map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(response{Success: true})
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "")

	_, err := c.Verify(context.Background(), "+971500000001", "123456")
	require.NoError(t, err)
	assert.NotContains(t, body, "userData")

	sel := domain.AccountTypeSelection{
		Type:         domain.AccountTypeOrganization,
		Organization: domain.Organization{Name: "Clinic", Type: "hospital", Country: "AE"},
	}
	_, err = c.Verify(domain.WithUserData(context.Background(), sel), "+971500000001", "123456")
	require.NoError(t, err)
	require.Contains(t, body, "userData")
	var got domain.AccountTypeSelection
	require.NoError(t, json.Unmarshal(body["userData"], &got))
	assert.Equal(t, sel, got)
}
