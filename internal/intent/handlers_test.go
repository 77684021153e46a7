package intent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	svc, _ := newTestService(t, addr)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))

	post := func(it SignedIntent) *httptest.ResponseRecorder {
		body, err := json.Marshal(it)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/intent", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("success", func(t *testing.T) {
		it := testIntent()
		it.Nonce = "handler-n1"
		signIntent(t, svc.verifier, &it, key)

		w := post(it)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"mode":"x402"`)
	})

	t.Run("replay returns conflict", func(t *testing.T) {
		it := testIntent()
		it.Nonce = "handler-n2"
		signIntent(t, svc.verifier, &it, key)

		require.Equal(t, http.StatusOK, post(it).Code)

		w := post(it)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "nonce_replayed")
	})

	t.Run("bad signature returns unauthorized", func(t *testing.T) {
		otherKey, err := crypto.GenerateKey()
		require.NoError(t, err)

		it := testIntent()
		it.Nonce = "handler-n3"
		signIntent(t, svc.verifier, &it, otherKey)

		w := post(it)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "signature_invalid")
	})

	t.Run("expired returns bad request", func(t *testing.T) {
		it := testIntent()
		it.Nonce = "handler-n4"
		it.ExpiresAt = time.Now().Add(-time.Minute).Unix()
		signIntent(t, svc.verifier, &it, key)

		w := post(it)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "intent_expired")
	})

	t.Run("missing fields return validation error", func(t *testing.T) {
		it := testIntent()
		it.Nonce = "handler-n5"
		it.Signature = ""

		w := post(it)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_error")
	})
}
