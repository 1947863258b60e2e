package main

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/reconquest/buildhook/internal/router"
	"github.com/reconquest/buildhook/internal/storage"
	"github.com/reconquest/pkg/log"
)

// MAX_PAYLOAD_SIZE caps inbound webhook bodies. GitHub documents up to
// ~25 MB for push events with large commit histories.
const MAX_PAYLOAD_SIZE = 32 << 20

type WebHandler struct {
	processor *router.Router
	store     storage.Store
	mux       *mux.Router
}

func NewWebHandler(processor *router.Router, store storage.Store) *WebHandler {
	handler := &WebHandler{
		processor: processor,
		store:     store,
	}

	routes := mux.NewRouter()
	routes.HandleFunc("/healthz", handler.HandleHealth).
		Methods(http.MethodGet)
	routes.HandleFunc("/webhooks/{provider}", handler.HandleWebhook).
		Methods(http.MethodPost)
	routes.HandleFunc("/webhooks/{provider}/{pipeline}", handler.HandleWebhook).
		Methods(http.MethodPost)

	handler.mux = routes

	return handler
}

func (handler *WebHandler) ServeHTTP(
	response http.ResponseWriter,
	request *http.Request,
) {
	handler.mux.ServeHTTP(response, request)
}

// HandleWebhook always answers: providers interpret a missing response
// as a delivery failure and retry, which is exactly what we must avoid
// for events we have already decided about.
func (handler *WebHandler) HandleWebhook(
	response http.ResponseWriter,
	request *http.Request,
) {
	vars := mux.Vars(request)

	body, err := ioutil.ReadAll(io.LimitReader(request.Body, MAX_PAYLOAD_SIZE))
	if err != nil {
		log.Warningf(err, "unable to read webhook request body")

		writeJSON(response, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "unable to read request body",
		})

		return
	}

	pipelineID := vars["pipeline"]
	if pipelineID == "" {
		pipelineID = request.URL.Query().Get("pipeline")
	}

	result := handler.processor.Process(router.Request{
		Provider:   vars["provider"],
		Headers:    request.Header,
		Body:       body,
		PipelineID: pipelineID,
	})

	switch result.Outcome {
	case router.OutcomePublished:
		writeJSON(response, http.StatusOK, map[string]interface{}{
			"success":      true,
			"build_id":     result.Build.ID,
			"build_number": result.Build.Number,
			"created":      result.Created,
		})

	case router.OutcomeIgnored:
		writeJSON(response, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"ignored": true,
		})

	case router.OutcomeMalformed:
		writeJSON(response, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "unable to resolve webhook target",
		})

	case router.OutcomeUnverified:
		writeJSON(response, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"error":   "signature verification failed",
		})

	default:
		writeJSON(response, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "processing failure",
		})
	}
}

func (handler *WebHandler) HandleHealth(
	response http.ResponseWriter,
	request *http.Request,
) {
	err := handler.store.Available()
	if err != nil {
		writeJSON(response, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
		})

		return
	}

	writeJSON(response, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func writeJSON(
	response http.ResponseWriter,
	code int,
	payload interface{},
) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(code)

	err := json.NewEncoder(response).Encode(payload)
	if err != nil {
		log.Errorf(err, "unable to write response body")
	}
}
