package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() OAuth1Credentials {
	return OAuth1Credentials{ConsumerKey: "ck", Token: "tok", TokenSecret: "toksecret", ConsumerSecret: "consecret"}
}

func TestListMachinesSendsOAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]Machine{{SystemID: "abc12", StatusName: StatusReady}})
	}))
	defer srv.Close()

	c := New(srv.URL, testCreds(), time.Second)
	machines, err := c.ListMachines(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, "abc12", machines[0].SystemID)
	assert.Contains(t, gotAuth, `oauth_signature_method="PLAINTEXT"`)
	assert.Contains(t, gotAuth, `oauth_consumer_key="ck"`)
}

func TestGetMachineNon2xxBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer srv.Close()

	c := New(srv.URL, testCreds(), time.Second)
	_, err := c.GetMachine(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestCommissionSetsEnableSSH(t *testing.T) {
	var gotForm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "commission", r.URL.Query().Get("op"))
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm.Get("enable_ssh")
		_ = json.NewEncoder(w).Encode(Machine{})
	}))
	defer srv.Close()

	c := New(srv.URL, testCreds(), time.Second)
	err := c.Commission(context.Background(), "abc13", true)
	require.NoError(t, err)
	assert.Equal(t, "1", gotForm)
}

func TestExtractWorkingIPsDedupesAndSkipsLinkLocal(t *testing.T) {
	m := Machine{
		InterfaceSet: []Interface{
			{
				DiscoveredIPs: []InterfaceLink{{IPAddress: "10.0.0.50"}, {IPAddress: "169.254.1.1"}},
				Links:         []InterfaceLink{{IPAddress: "10.0.0.50"}, {IPAddress: "127.0.0.1"}},
			},
		},
	}
	ips := ExtractWorkingIPs(m)
	assert.Equal(t, []string{"10.0.0.50"}, ips)
}

func TestForceCommissionAbortsFromFailedState(t *testing.T) {
	calls := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := r.URL.Query().Get("op")
		if op != "" {
			calls = append(calls, op)
			_ = json.NewEncoder(w).Encode(Machine{})
			return
		}
		status := StatusCommissioned
		if len(calls) == 0 {
			status = StatusFailedCommission
		}
		_ = json.NewEncoder(w).Encode(Machine{SystemID: "abc14", StatusName: status})
	}))
	defer srv.Close()

	c := New(srv.URL, testCreds(), time.Second)
	err := c.ForceCommission(context.Background(), "abc14", nil)
	require.NoError(t, err)
	require.Contains(t, calls, "abort")
	require.Contains(t, calls, "commission")
}
