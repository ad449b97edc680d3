package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/property-doc-engine/internal/adapters/http/openapi"
	"github.com/kirillkom/property-doc-engine/internal/config"
	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
	"github.com/kirillkom/property-doc-engine/internal/observability/metrics"
)

const serviceName = "api"

// Services are the inbound ports served over HTTP. A nil port answers 501.
type Services struct {
	Ingestor   ports.DocumentIngestor
	Documents  ports.DocumentReader
	Classifier ports.Classifier
	Extractor  ports.FieldExtractor
	TestRunner ports.TestRunner
	Suggester  ports.Suggester
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
}

type Option func(*Router)

// WithMetrics mounts /metrics and counts requests and rejections.
func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(cfg config.Config, svc Services, opts ...Option) *Router {
	rt := &Router{cfg: cfg, svc: svc}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler assembles the middleware chain, outermost first: request id,
// access log, metrics, rate limit, backpressure, body limit, validation.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocument)
	mux.HandleFunc("GET /v1/documents/{document_id}/suggestion", rt.getSuggestion)
	mux.HandleFunc("POST /v1/classify", rt.classify)
	mux.HandleFunc("POST /v1/extract", rt.extract)
	mux.HandleFunc("POST /v1/test-runs", rt.testRun)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPISpec)

	var api http.Handler = mux
	if rt.cfg.APIRequestValidation {
		doc, err := openapi.Spec()
		if err != nil {
			panic(fmt.Sprintf("embedded openapi spec: %v", err))
		}
		validator, err := newRequestValidator(doc)
		if err != nil {
			panic(fmt.Sprintf("embedded openapi spec: %v", err))
		}
		api = validator.middleware(api)
	}
	api = bodyLimitMiddleware(api, rt.cfg.APIMaxUploadBytes, rt.cfg.APIMaxTextBytes)

	var onReject []rejectFunc
	if rt.metrics != nil {
		onReject = append(onReject, func(reason string) {
			rt.metrics.RecordRejected(serviceName, reason)
		})
	}
	api = backpressureMiddleware(api, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, onReject...)
	api = rateLimitMiddleware(api, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject...)

	// Probes and scrapes bypass traffic control.
	root := http.NewServeMux()
	root.Handle("/", api)
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Raw())
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ingestor == nil {
		writeError(w, r, http.StatusNotImplemented, "document upload is not configured")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Documents == nil {
		writeError(w, r, http.StatusNotImplemented, "document lookup is not configured")
		return
	}
	id, err := documentIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	doc, err := rt.svc.Documents.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getSuggestion(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Suggester == nil {
		writeError(w, r, http.StatusNotImplemented, "suggestions are not configured")
		return
	}
	id, err := documentIDParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	payload, err := rt.svc.Suggester.Suggest(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type classifyRequest struct {
	Text string `json:"text"`
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Classifier == nil {
		writeError(w, r, http.StatusNotImplemented, "classification is not configured")
		return
	}
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := rt.svc.Classifier.Classify(r.Context(), req.Text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type extractRequest struct {
	Text           string `json:"text"`
	DocumentTypeID string `json:"document_type_id"`
}

func (rt *Router) extract(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Extractor == nil {
		writeError(w, r, http.StatusNotImplemented, "extraction is not configured")
		return
	}
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.DocumentTypeID) == "" {
		writeError(w, r, http.StatusBadRequest, "document_type_id is required")
		return
	}

	result, err := rt.svc.Extractor.Extract(r.Context(), req.Text, req.DocumentTypeID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) testRun(w http.ResponseWriter, r *http.Request) {
	if rt.svc.TestRunner == nil {
		writeError(w, r, http.StatusNotImplemented, "test runs are not configured")
		return
	}
	var req domain.TestRunRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := rt.svc.TestRunner.Run(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func documentIDParam(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "document_id", r.PathValue("document_id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind document_id", err)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", io.EOF)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}
