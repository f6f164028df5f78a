// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"workpal/internal/core"
	"workpal/pkg/domain"
)

// MaxUploadBytes caps uploaded rule documents and workbooks.
const MaxUploadBytes = 32 << 20

// Engine is the subset of the service the HTTP surface needs.
type Engine interface {
	Execute(ctx context.Context, in domain.Intent) (domain.ExecutionResult, error)
	RuleDocument(ctx context.Context, scope domain.Scope) (domain.RuleDocument, error)
	SetupDepartments(ctx context.Context, names []string) ([]string, error)
	ListDepartments() []domain.Department
	Tables(ctx context.Context, department string) ([]string, error)
	UploadRules(ctx context.Context, scope domain.Scope, filename, contentType string, data []byte) (domain.RuleDocument, error)
	UploadDataset(ctx context.Context, department, filename, contentType string, data []byte) ([]string, error)
	ExportDataset(ctx context.Context, department string) ([]byte, error)
}

// Handler serves the workpal API.
type Handler struct {
	Engine Engine
	Log    *zap.Logger
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// NewHandler constructs an API handler.
func NewHandler(e Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: e, Log: log}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestID, h.accessLog)
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/intents/execute", h.executeIntent).Methods(http.MethodPost)
	api.HandleFunc("/rules/{scope}", h.getRules).Methods(http.MethodGet)
	api.HandleFunc("/central-rules", h.uploadCentralRules).Methods(http.MethodPost)
	api.HandleFunc("/departments", h.listDepartments).Methods(http.MethodGet)
	api.HandleFunc("/departments/setup", h.setupDepartments).Methods(http.MethodPost)
	api.HandleFunc("/departments/{department}/tables", h.listTables).Methods(http.MethodGet)
	api.HandleFunc("/departments/{department}/rules", h.uploadDepartmentRules).Methods(http.MethodPost)
	api.HandleFunc("/departments/{department}/dataset", h.uploadDataset).Methods(http.MethodPost)
	api.HandleFunc("/departments/{department}/dataset", h.exportDataset).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return router
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) executeIntent(w http.ResponseWriter, r *http.Request) {
	var in domain.Intent
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid intent payload: "+err.Error())
		return
	}
	res, err := h.Engine.Execute(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getRules(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Engine.RuleDocument(r.Context(), domain.Scope(mux.Vars(r)["scope"]))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": doc})
}

type setupRequest struct {
	Departments []string `json:"departments"`
}

func (h *Handler) setupDepartments(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid setup payload")
		return
	}
	keys, err := h.Engine.SetupDepartments(r.Context(), req.Departments)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"departments": keys})
}

func (h *Handler) listDepartments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"departments": h.Engine.ListDepartments()})
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	names, err := h.Engine.Tables(r.Context(), mux.Vars(r)["department"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": names})
}

func (h *Handler) uploadDepartmentRules(w http.ResponseWriter, r *http.Request) {
	h.uploadRules(w, r, domain.Scope(mux.Vars(r)["department"]))
}

func (h *Handler) uploadCentralRules(w http.ResponseWriter, r *http.Request) {
	h.uploadRules(w, r, domain.CentralScope)
}

func (h *Handler) uploadRules(w http.ResponseWriter, r *http.Request, scope domain.Scope) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	doc, err := h.Engine.UploadRules(r.Context(), scope, up.filename, up.contentType, up.data)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"scope":       doc.Scope,
		"uploaded_at": doc.UploadedAt,
		"characters":  len(doc.RuleText),
	})
}

func (h *Handler) uploadDataset(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	names, err := h.Engine.UploadDataset(r.Context(), mux.Vars(r)["department"], up.filename, up.contentType, up.data)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tables": names})
}

func (h *Handler) exportDataset(w http.ResponseWriter, r *http.Request) {
	dept := mux.Vars(r)["department"]
	data, err := h.Engine.ExportDataset(r.Context(), dept)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", core.WorkbookContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", domain.NormalizeDepartment(dept)+"_database.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload takes the "file" part of a multipart form.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return upload{}, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", MaxUploadBytes))
		return upload{}, false
	}
	return upload{filename: header.Filename, contentType: header.Header.Get("Content-Type"), data: data}, true
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrKindUnknownAction, domain.ErrKindCorruptFile:
		return http.StatusBadRequest
	case domain.ErrKindUnknownDepartment, domain.ErrKindNotFound:
		return http.StatusNotFound
	case domain.ErrKindSchema:
		return http.StatusUnprocessableEntity
	case domain.ErrKindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.ErrKindBusy:
		return http.StatusConflict
	case domain.ErrKindStorage:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if domain.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "kind": domain.KindOf(err)})
}

type requestIDKey struct{}

// RequestID returns the request id assigned by the router middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.Log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
