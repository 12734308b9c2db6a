package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/ragflow/agent"
	"github.com/BaSui01/ragflow/internal/auth"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/internal/registry"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/rag/loader"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// 默认检索条数
const defaultK = 5

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Store        *rag.FlatStore
	Retriever    *rag.Retriever
	Generator    *rag.AnswerGenerator
	Orchestrator *agent.Orchestrator
	Ingestor     *rag.Ingestor
	Registry     *registry.Registry
	Cache        *cache.AnswerCache
	Auth         *auth.Manager
	Metrics      *metrics.Collector
	Logger       *zap.Logger

	MaxUploadBytes int64
}

// Handler serves the API routes.
type Handler struct {
	deps   Deps
	group  singleflight.Group
	logger *zap.Logger
}

// NewRouter builds the full middleware-wrapped route table.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Handler{deps: deps, logger: deps.Logger.With(zap.String("component", "api"))}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /auth/token", h.issueToken)
	mux.HandleFunc("POST /api/v1/query", h.query)
	mux.HandleFunc("POST /api/v1/search", h.search)
	mux.HandleFunc("POST /api/v1/upload", h.upload)
	mux.HandleFunc("GET /api/v1/documents", h.documents)

	return Chain(mux,
		Recovery(deps.Logger),
		RequestLog(deps.Logger),
		Metrics(deps.Metrics),
		CORS(),
		BearerAuth(deps.Auth),
	)
}

// allowedRoles derives the retrieval filter from the request's claims.
// Anonymous requests get open access.
func allowedRoles(ctx context.Context) []string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil
	}
	return auth.AllowedSources(claims.Roles)
}

// =============================================================================
// /auth/token
// =============================================================================

type tokenRequest struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "authentication is not configured"))
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Username == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "username is required"))
		return
	}

	token, err := h.deps.Auth.Issue(req.Username, req.Roles)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to sign token").WithCause(err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"token": token, "roles": req.Roles})
}

// =============================================================================
// /api/v1/query — simple RAG
// =============================================================================

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type queryResponse struct {
	Answer     string         `json:"answer"`
	Evidence   []rag.Evidence `json:"evidence"`
	Sources    []string       `json:"sources"`
	Confidence float64        `json:"confidence"`
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "query is required"))
		return
	}
	if req.K <= 0 {
		req.K = defaultK
	}

	roles := allowedRoles(r.Context())
	out, err := h.simpleRAG(r.Context(), req.Query, req.K, roles)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) simpleRAG(ctx context.Context, query string, k int, roles []string) (*queryResponse, error) {
	cacheKey := cache.Key(query, roles)
	var cached queryResponse
	if h.deps.Cache.Get(ctx, cacheKey, &cached) {
		if h.deps.Metrics != nil {
			h.deps.Metrics.ObserveCache(true)
		}
		return &cached, nil
	}
	if h.deps.Metrics != nil {
		h.deps.Metrics.ObserveCache(false)
	}

	results, err := h.deps.Retriever.Retrieve(ctx, query, k, roles)
	if err != nil {
		return nil, err
	}
	if h.deps.Metrics != nil {
		h.deps.Metrics.ObserveRetrieval(len(results))
	}

	generated := h.deps.Generator.Generate(ctx, query, results)

	sources := make([]string, 0, len(generated.Evidence))
	seen := map[string]struct{}{}
	for _, e := range generated.Evidence {
		if _, ok := seen[e.Source]; ok {
			continue
		}
		seen[e.Source] = struct{}{}
		sources = append(sources, e.Source)
	}

	out := &queryResponse{
		Answer:     generated.Answer,
		Evidence:   generated.Evidence,
		Sources:    sources,
		Confidence: generated.Confidence,
	}
	h.deps.Cache.Set(ctx, cacheKey, out)
	return out, nil
}

// =============================================================================
// /api/v1/search — mode=rag|agentic
// =============================================================================

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	K     int    `json:"k,omitempty"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "query is required"))
		return
	}
	if req.K <= 0 {
		req.K = defaultK
	}

	mode := req.Mode
	if mode == "" {
		mode = "rag"
	}

	roles := allowedRoles(r.Context())

	// 相同查询的并发请求合并为一次流水线执行。
	// 执行上下文与首个调用方解耦,避免其断开连接取消搭车请求。
	flightKey := mode + "|" + cache.Key(req.Query, roles)
	flightCtx := context.WithoutCancel(r.Context())
	result, err, _ := h.group.Do(flightKey, func() (any, error) {
		switch mode {
		case "rag":
			out, err := h.simpleRAG(flightCtx, req.Query, req.K, roles)
			if err != nil {
				return nil, err
			}
			return map[string]any{"mode": "rag", "result": out}, nil
		case "agentic":
			resp := h.deps.Orchestrator.Search(flightCtx, req.Query, roles)
			return resp, nil
		default:
			return nil, types.NewError(types.ErrInvalidRequest, "mode must be rag or agentic")
		}
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// =============================================================================
// /api/v1/upload — multipart ingest
// =============================================================================

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.deps.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "invalid multipart form").WithCause(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "file field is required").WithCause(err))
		return
	}
	defer file.Close()

	var roles []string
	if raw := strings.TrimSpace(r.FormValue("roles")); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}

	// 落盘为临时文件,走统一的文件摄取路径
	tmp, err := os.CreateTemp("", "ragflow-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to buffer upload").WithCause(err))
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		WriteError(w, types.NewError(types.ErrInternalError, "failed to buffer upload").WithCause(err))
		return
	}
	tmp.Close()

	text := loader.ExtractText(tmp.Name())
	if text == "" {
		WriteError(w, types.NewError(types.ErrValidation, "no text could be extracted from "+header.Filename))
		return
	}

	result, err := h.deps.Ingestor.IngestText(r.Context(), text, header.Filename, roles)
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.deps.Metrics != nil {
		h.deps.Metrics.SetStoreDocuments(h.deps.Store.Len())
	}

	WriteJSON(w, http.StatusCreated, result)
}

// =============================================================================
// /api/v1/documents
// =============================================================================

func (h *Handler) documents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Registry == nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "document registry is not configured"))
		return
	}

	docs, err := h.deps.Registry.List(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to list documents").WithCause(err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// =============================================================================
// /health
// =============================================================================

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"status":    "ok",
		"documents": h.deps.Store.Len(),
		"generator": h.deps.Generator.Ready(),
	}
	WriteJSON(w, http.StatusOK, data)
}
