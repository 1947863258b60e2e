package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/notifications"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/provider/generic"
	"github.com/reconquest/buildhook/internal/provider/github"
	"github.com/reconquest/buildhook/internal/publisher"
	"github.com/reconquest/buildhook/internal/reconciler"
	"github.com/reconquest/buildhook/internal/router"
	"github.com/reconquest/buildhook/internal/storage"
)

func testHandler(t *testing.T) (*WebHandler, *storage.Memory) {
	store := storage.NewMemory()

	err := store.SavePipeline(&entities.Pipeline{
		ID:             "pipe-1",
		OrganizationID: "org-1",
		Provider:       "github",
		Repository:     "https://github.com/acme/api",
		Branch:         "main",
		WebhookSecret:  "hookshot",
	})
	if err != nil {
		t.Fatal(err)
	}

	registry := provider.NewRegistry(
		github.NewAdapter(),
		generic.NewAdapter(),
	)

	processor := router.New(
		registry,
		store,
		reconciler.New(
			store,
			notifications.NewStoreNotifier(store),
			publisher.NewBroker(),
		),
	)

	return NewWebHandler(processor, store), store
}

func post(
	handler http.Handler,
	url string,
	body []byte,
	pairs ...string,
) *httptest.ResponseRecorder {
	request := httptest.NewRequest(
		http.MethodPost, url, bytes.NewReader(body),
	)
	for i := 0; i < len(pairs); i += 2 {
		request.Header.Set(pairs[i], pairs[i+1])
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	return recorder
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	var payload map[string]interface{}

	err := json.Unmarshal(recorder.Body.Bytes(), &payload)
	if err != nil {
		t.Fatal(err)
	}

	return payload
}

func TestWebHandler_Webhook_PushCreatesBuild(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	body := []byte(`{
		"ref": "refs/heads/main",
		"after": "abc123",
		"repository": {"html_url": "https://github.com/acme/api"},
		"head_commit": {"message": "release", "author": {"name": "dev"}}
	}`)

	recorder := post(
		handler, "/webhooks/github", body,
		github.HeaderEvent, "push",
		github.HeaderSignature, signBody("hookshot", body),
	)

	test.Equal(http.StatusOK, recorder.Code)

	payload := decode(t, recorder)
	test.Equal(true, payload["success"])
	test.Equal(true, payload["created"])
	test.Equal(float64(1), payload["build_number"])
}

func TestWebHandler_Webhook_IrrelevantEventIsAccepted(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	body := []byte(`{
		"action": "created",
		"repository": {"html_url": "https://github.com/acme/api"}
	}`)

	recorder := post(
		handler, "/webhooks/github", body,
		github.HeaderEvent, "star",
		github.HeaderSignature, signBody("hookshot", body),
	)

	test.Equal(http.StatusAccepted, recorder.Code)
	test.Equal(true, decode(t, recorder)["ignored"])
}

func TestWebHandler_Webhook_BadSignatureIsUnauthorized(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	body := []byte(`{
		"ref": "refs/heads/main",
		"after": "abc123",
		"repository": {"html_url": "https://github.com/acme/api"}
	}`)

	recorder := post(
		handler, "/webhooks/github", body,
		github.HeaderEvent, "push",
		github.HeaderSignature, "sha256=deadbeef",
	)

	test.Equal(http.StatusUnauthorized, recorder.Code)
	test.Equal(false, decode(t, recorder)["success"])
}

func TestWebHandler_Webhook_UnknownRepositoryIsBadRequest(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	body := []byte(`{
		"repository": {"html_url": "https://github.com/acme/other"}
	}`)

	recorder := post(
		handler, "/webhooks/github", body,
		github.HeaderEvent, "push",
	)

	test.Equal(http.StatusBadRequest, recorder.Code)
}

func TestWebHandler_Webhook_PipelineFromPath(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	body := []byte(`{
		"event": "build",
		"build": {"id": "b-1", "status": "success"},
		"commit": {"sha": "abc123", "branch": "main"}
	}`)

	recorder := post(
		handler, "/webhooks/generic/pipe-1", body,
		generic.HeaderToken, "hookshot",
	)

	test.Equal(http.StatusOK, recorder.Code)
	test.Equal(true, decode(t, recorder)["success"])
}

func TestWebHandler_Webhook_PipelineFromQuery(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	body := []byte(`{
		"event": "build",
		"build": {"id": "b-2", "status": "running"},
		"commit": {"sha": "def456", "branch": "main"}
	}`)

	recorder := post(
		handler, "/webhooks/generic?pipeline=pipe-1", body,
		generic.HeaderToken, "hookshot",
	)

	test.Equal(http.StatusOK, recorder.Code)
}

func TestWebHandler_Webhook_StoreOutageIsServerError(t *testing.T) {
	test := assert.New(t)

	handler, store := testHandler(t)
	store.SetAvailable(false)

	body := []byte(`{
		"ref": "refs/heads/main",
		"after": "abc123",
		"repository": {"html_url": "https://github.com/acme/api"}
	}`)

	recorder := post(
		handler, "/webhooks/github", body,
		github.HeaderEvent, "push",
		github.HeaderSignature, signBody("hookshot", body),
	)

	test.Equal(http.StatusInternalServerError, recorder.Code)
}

func TestWebHandler_Webhook_GetMethodIsNotRouted(t *testing.T) {
	test := assert.New(t)

	handler, _ := testHandler(t)

	request := httptest.NewRequest(http.MethodGet, "/webhooks/github", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	test.Equal(http.StatusMethodNotAllowed, recorder.Code)
}

func TestWebHandler_Health(t *testing.T) {
	test := assert.New(t)

	handler, store := testHandler(t)

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	test.Equal(http.StatusOK, recorder.Code)

	store.SetAvailable(false)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	test.Equal(http.StatusServiceUnavailable, recorder.Code)
}
