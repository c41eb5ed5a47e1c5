package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerbell/hwprovisiond/internal/fleet"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
	"github.com/tinkerbell/hwprovisiond/internal/store"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

func testCreds() fleet.OAuth1Credentials {
	return fleet.OAuth1Credentials{ConsumerKey: "ck", Token: "tok", TokenSecret: "toksecret", ConsumerSecret: "consecret"}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestHandleNormalCommissionPath(t *testing.T) {
	calls := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := r.URL.Query().Get("op")
		switch {
		case op == "commission":
			calls = append(calls, "commission")
			_ = json.NewEncoder(w).Encode(fleet.Machine{})
		default:
			_ = json.NewEncoder(w).Encode(fleet.Machine{SystemID: "abc20", StatusName: fleet.StatusCommissioned})
		}
	}))
	defer srv.Close()

	fc := fleet.New(srv.URL, testCreds(), time.Second)
	st := openTestStore(t)
	require.NoError(t, st.EnsureServer(context.Background(), "srv-20"))

	h := &CommissioningHandler{Fleet: fc, Store: st, Creds: sshadapter.Credentials{}}
	wfCtx := workflow.NewContext("wf-20", "srv-20", "dt-1", nil)

	result := h.Handle(context.Background(), wfCtx, "abc20")
	assert.Equal(t, workflow.StatusSuccess, result.Status)
	assert.Contains(t, calls, "commission")
}

func TestHandleForceRecommissionsFromBrokenState(t *testing.T) {
	gotOps := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := r.URL.Query().Get("op")
		if op != "" {
			gotOps = append(gotOps, op)
			_ = json.NewEncoder(w).Encode(fleet.Machine{})
			return
		}
		status := fleet.StatusCommissioned
		if len(gotOps) == 0 {
			status = fleet.StatusBroken
		}
		_ = json.NewEncoder(w).Encode(fleet.Machine{SystemID: "abc21", StatusName: status})
	}))
	defer srv.Close()

	fc := fleet.New(srv.URL, testCreds(), time.Second)
	st := openTestStore(t)
	require.NoError(t, st.EnsureServer(context.Background(), "srv-21"))

	h := &CommissioningHandler{Fleet: fc, Store: st, Creds: sshadapter.Credentials{}}
	wfCtx := workflow.NewContext("wf-21", "srv-21", "dt-1", nil)

	result := h.Handle(context.Background(), wfCtx, "abc21")
	assert.Equal(t, workflow.StatusSuccess, result.Status)
	assert.Contains(t, gotOps, "abort")
	assert.Contains(t, gotOps, "commission")
}

func TestHandleReadyWithoutSSHForcesRecommission(t *testing.T) {
	gotOps := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := r.URL.Query().Get("op")
		if op != "" {
			gotOps = append(gotOps, op)
			_ = json.NewEncoder(w).Encode(fleet.Machine{})
			return
		}
		status := fleet.StatusCommissioned
		if len(gotOps) == 0 {
			status = fleet.StatusReady
		}
		_ = json.NewEncoder(w).Encode(fleet.Machine{
			SystemID:   "abc22",
			StatusName: status,
			InterfaceSet: []fleet.Interface{
				{DiscoveredIPs: []fleet.InterfaceLink{{IPAddress: "203.0.113.9"}}},
			},
		})
	}))
	defer srv.Close()

	fc := fleet.New(srv.URL, testCreds(), time.Second)
	st := openTestStore(t)
	require.NoError(t, st.EnsureServer(context.Background(), "srv-22"))

	// No real SSH listener at 203.0.113.9 (TEST-NET-3, non-routable) so the
	// probe never succeeds and the ready-without-working-ssh branch fires.
	h := &CommissioningHandler{Fleet: fc, Store: st, Creds: sshadapter.Credentials{ConnectTO: 50 * time.Millisecond}}
	wfCtx := workflow.NewContext("wf-22", "srv-22", "dt-1", nil)

	result := h.Handle(context.Background(), wfCtx, "abc22")
	assert.Equal(t, workflow.StatusSuccess, result.Status)
	assert.Contains(t, gotOps, "commission")
}
