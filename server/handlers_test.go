package server_test

import (
	"bytes"
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/netstatehq/zk-census/census"
	"github.com/netstatehq/zk-census/merkle"
	"github.com/netstatehq/zk-census/server"
	"github.com/netstatehq/zk-census/store"
	"github.com/netstatehq/zk-census/verifier"
)

const testDepth = 4

// newRouter builds a handler stack without a verifying key: the read
// and registration surface works while /verify reports the config gap.
func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "census.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	require.NoError(t, err)

	svc := verifier.New(zerolog.Nop(), st, merkle.New(testDepth), verifier.Config{
		Depth:      testDepth,
		SignerPub:  pub,
		SignerPriv: priv,
	})
	h := server.NewHandler(zerolog.Nop(), svc, 3600)

	router := gin.New()
	h.Routes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func registerCommitment(t *testing.T, router *gin.Engine) string {
	t.Helper()
	id, err := census.NewIdentity()
	require.NoError(t, err)
	c := id.Commitment()
	commitment := census.ElementHex(&c)

	w, _ := doJSON(t, router, http.MethodPost, "/citizens", gin.H{
		"commitment": commitment,
		"name":       "citizen",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return commitment
}

func TestRootEndpoint(t *testing.T) {
	router := newRouter(t)

	w, out := doJSON(t, router, http.MethodGet, "/root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), out["leafCount"])

	registerCommitment(t, router)

	w, out2 := doJSON(t, router, http.MethodGet, "/root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), out2["leafCount"])
	require.NotEqual(t, out["root"], out2["root"])
}

func TestRegisterAndProofRoundTrip(t *testing.T) {
	router := newRouter(t)
	commitment := registerCommitment(t, router)

	w, out := doJSON(t, router, http.MethodGet, "/proof/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, commitment, out["leaf"])
	require.Len(t, out["pathElements"], testDepth)
	require.Len(t, out["pathIndices"], testDepth)

	w, out = doJSON(t, router, http.MethodGet, "/proof-by-commitment/"+commitment, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, out["citizen"])

	w, _ = doJSON(t, router, http.MethodGet, "/proof/5", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	unknown, err := census.NewIdentity()
	require.NoError(t, err)
	uc := unknown.Commitment()
	w, _ = doJSON(t, router, http.MethodGet, "/proof-by-commitment/"+census.ElementHex(&uc), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	router := newRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/citizens", gin.H{"name": "no-commitment"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, out := doJSON(t, router, http.MethodPost, "/citizens", gin.H{"commitment": "garbage"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, verifier.CodeBadCommitment, out["code"])

	commitment := registerCommitment(t, router)
	w, out = doJSON(t, router, http.MethodPost, "/citizens", gin.H{"commitment": commitment})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, verifier.CodeDuplicateCitizen, out["code"])
}

func TestCitizensListing(t *testing.T) {
	router := newRouter(t)
	for i := 0; i < 3; i++ {
		registerCommitment(t, router)
	}

	w, out := doJSON(t, router, http.MethodGet, "/citizens?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), out["count"])

	w, out = doJSON(t, router, http.MethodGet, "/citizens/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), out["leafIndex"])

	w, _ = doJSON(t, router, http.MethodGet, "/citizens/9", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/citizens?offset=abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = doJSON(t, router, http.MethodGet, "/citizens?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = doJSON(t, router, http.MethodGet, "/citizens?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScopeEndpoints(t *testing.T) {
	router := newRouter(t)

	w, out := doJSON(t, router, http.MethodGet, "/scope", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), out["scope"])
	require.Equal(t, float64(3600), out["duration"])

	w, out = doJSON(t, router, http.MethodPost, "/scope/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), out["oldScope"])
	require.Equal(t, float64(1), out["newScope"])

	w, out = doJSON(t, router, http.MethodGet, "/scope", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), out["scope"])
}

func TestHealthAndPubkey(t *testing.T) {
	router := newRouter(t)

	w, out := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "degraded", out["status"], "no verifying key loaded")
	require.Equal(t, false, out["hasVerificationKey"])
	require.NotEmpty(t, out["verifierPubkey"])

	w, out = doJSON(t, router, http.MethodGet, "/verifier-pubkey", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, out["publicKey"])
	require.NotEmpty(t, out["encoded"])
}

func TestStatsEndpoint(t *testing.T) {
	router := newRouter(t)
	registerCommitment(t, router)

	w, out := doJSON(t, router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), out["totalRegistered"])
	require.Equal(t, float64(1), out["leafCount"])
}

func TestVerifyEndpointErrors(t *testing.T) {
	router := newRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/verify", gin.H{"proof": "0x01"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/verify", gin.H{
		"proof":         "not-hex",
		"publicSignals": []string{"0", "0", "0", "0"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// structurally fine request, but the verifying key is not loaded
	w, out := doJSON(t, router, http.MethodPost, "/verify", gin.H{
		"proof":         "0x0102",
		"publicSignals": []string{"0", "0", "0", "0"},
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, verifier.CodeNotReady, out["code"])
	require.Equal(t, false, out["success"])
}

func TestUnparseableLeafIndex(t *testing.T) {
	router := newRouter(t)
	w, _ := doJSON(t, router, http.MethodGet, fmt.Sprintf("/proof/%s", "abc"), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
