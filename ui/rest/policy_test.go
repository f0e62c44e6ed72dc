package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/infrastructure/policystore"
)

func newPolicyApp(store policy.Store) *fiber.App {
	app := fiber.New()
	InitPolicyAPI(app.Group("/api"), store)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestApprovePairingAddsToAllowlist(t *testing.T) {
	store := policystore.NewMemoryStore()
	app := newPolicyApp(store)

	ctx := context.Background()
	require.NoError(t, store.CreatePairing(ctx, policy.PairingEntry{
		Code:      "123456",
		RawID:     "491700000001@s.whatsapp.net",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}))

	resp := postJSON(t, app, "/api/pairing/approve", map[string]string{
		"code":  "123456",
		"label": "Alice",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	entry, err := store.GetAllowlistEntry(ctx, "+491700000001")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "491700000001@s.whatsapp.net", entry.RawID)
	assert.Equal(t, "Alice", entry.Label)

	// Consumed codes are gone.
	pairing, err := store.GetPairing(ctx, "123456")
	require.NoError(t, err)
	assert.Nil(t, pairing)
}

func TestApprovePairingUnknownCode(t *testing.T) {
	app := newPolicyApp(policystore.NewMemoryStore())

	resp := postJSON(t, app, "/api/pairing/approve", map[string]string{"code": "999999"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprovePairingExpiredCode(t *testing.T) {
	store := policystore.NewMemoryStore()
	app := newPolicyApp(store)

	ctx := context.Background()
	require.NoError(t, store.CreatePairing(ctx, policy.PairingEntry{
		Code:      "111111",
		RawID:     "491700000002@s.whatsapp.net",
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))

	resp := postJSON(t, app, "/api/pairing/approve", map[string]string{"code": "111111"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	// Nobody got allowlisted.
	entries, err := store.ListAllowlist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApprovePairingRejectsMalformedCode(t *testing.T) {
	app := newPolicyApp(policystore.NewMemoryStore())

	for _, code := range []string{"", "12345", "abcdef", "1234567"} {
		resp := postJSON(t, app, "/api/pairing/approve", map[string]string{"code": code})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "code %q", code)
	}
}

func TestAllowlistCRUD(t *testing.T) {
	store := policystore.NewMemoryStore()
	app := newPolicyApp(store)

	resp := postJSON(t, app, "/api/allowlist", map[string]string{
		"phone": "491701234567",
		"label": "Bob",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Bare digits are normalized to the canonical +<digits> form.
	entry, err := store.GetAllowlistEntry(context.Background(), "+491701234567")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Bob", entry.Label)

	req := httptest.NewRequest(http.MethodGet, "/api/allowlist", nil)
	listResp, err := app.Test(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var payload struct {
		Results []AllowlistEntryResponse `json:"results"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&payload))
	require.Len(t, payload.Results, 1)
	assert.Equal(t, "+491701234567", payload.Results[0].Phone)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/allowlist/+491701234567", nil)
	delResp, err := app.Test(delReq)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	entries, err := store.ListAllowlist(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAllowlistAddRequiresPhone(t *testing.T) {
	app := newPolicyApp(policystore.NewMemoryStore())

	resp := postJSON(t, app, "/api/allowlist", map[string]string{"label": "nobody"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGroupUpsertDefaultsAndValidation(t *testing.T) {
	store := policystore.NewMemoryStore()
	app := newPolicyApp(store)

	resp := postJSON(t, app, "/api/groups", map[string]any{
		"group_id": "123@g.us",
		"label":    "Ops",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cfg := store.GetGroupConfig(context.Background(), "123@g.us")
	assert.True(t, cfg.Allowed)
	assert.Equal(t, policy.ModeMentions, cfg.Mode)

	// Explicit observe mode.
	resp = postJSON(t, app, "/api/groups", map[string]any{
		"group_id": "123@g.us",
		"mode":     "observe",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cfg = store.GetGroupConfig(context.Background(), "123@g.us")
	assert.Equal(t, policy.ModeObserve, cfg.Mode)

	// Unknown mode is rejected.
	resp = postJSON(t, app, "/api/groups", map[string]any{
		"group_id": "123@g.us",
		"mode":     "sometimes",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
