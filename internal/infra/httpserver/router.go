package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appevaluation "github.com/bryanwahyu/tor-evaluator/internal/application/evaluation"
	appguidelines "github.com/bryanwahyu/tor-evaluator/internal/application/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/middleware"
)

const (
	maxBodyBytes   = 25 << 20
	maxMemoryBytes = 8 << 20
)

// Evaluations is the evaluation use-case surface the router needs.
type Evaluations interface {
	Evaluate(ctx context.Context, cmd appevaluation.EvaluateCommand) (*evaluation.Session, error)
	Get(ctx context.Context, id string) (*evaluation.Session, error)
	GetMany(ctx context.Context, ids []string) ([]*evaluation.Session, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*evaluation.Summary, error)
	Ask(ctx context.Context, cmd appevaluation.FollowupCommand) (*evaluation.Followup, error)
	Rate(ctx context.Context, cmd appevaluation.FeedbackCommand) (*evaluation.Feedback, error)
}

// Guidelines is the guideline use-case surface the router needs.
type Guidelines interface {
	Resolve(ctx context.Context, email, organizationID string) (*appguidelines.Resolution, error)
	CanAccess(ctx context.Context, email, guidelineID string) (bool, error)
	AuditTrail(ctx context.Context, q guidelines.AuditQuery) ([]*guidelines.AccessAudit, error)
}

// Options configures the ambient middleware stack.
type Options struct {
	AllowedOrigins []string
	APIKeys        map[string]string
	RateCapacity   int
	RateRefill     int
	Checkers       map[string]middleware.HealthChecker
	Metrics        *middleware.Metrics
	Logger         *zap.Logger
}

type Router struct {
	evals   Evaluations
	guides  Guidelines
	metrics *middleware.Metrics
	logger  *zap.Logger
}

func NewRouter(evals Evaluations, guides Guidelines, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	r := &Router{evals: evals, guides: guides, metrics: opts.Metrics, logger: opts.Logger}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.RequestLogger(opts.Logger))
	mux.Use(opts.Metrics.Middleware)
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateCapacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(opts.RateCapacity, opts.RateRefill))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/evaluations", r.wrapEvaluation(r.handleEvaluate))
		rt.Get("/evaluations", r.wrap(r.handleListEvaluations))
		rt.Post("/evaluations/batch", r.wrap(r.handleBatchEvaluations))
		rt.Get("/evaluations/{id}", r.wrap(r.handleGetEvaluation))
		rt.Post("/evaluations/{id}/followups", r.wrap(r.handleFollowup))
		rt.Post("/evaluations/{id}/feedback", r.wrap(r.handleFeedback))

		rt.Get("/guidelines", r.wrap(r.handleResolve))
		rt.Get("/guidelines/{id}/access", r.wrap(r.handleCanAccess))
		rt.Get("/audit", r.wrap(r.handleAudit))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// wrap maps use-case errors to status codes. Only our own validation
// messages reach the caller; anything else gets a generic message.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.fail(w, req, err, map[string]any{})
		}
	}
}

// wrapEvaluation is wrap for evaluation runs: a failed run still answers
// with the evaluation status field.
func (r *Router) wrapEvaluation(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.fail(w, req, err, map[string]any{"status": evaluation.StatusFailure})
		}
	}
}

func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error, body map[string]any) {
	status, msg := classify(err)
	if status >= 500 {
		r.logger.Error("request_failed",
			zap.String("path", req.URL.Path),
			zap.String("request_id", chimw.GetReqID(req.Context())),
			zap.Error(err))
	}
	body["error"] = msg
	_ = writeJSON(w, status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, evaluation.ErrInvalidRequest),
		errors.Is(err, evaluation.ErrUnsupportedDocument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, evaluation.ErrEmptyProposal):
		return http.StatusBadRequest, "proposal text is empty"
	case errors.Is(err, evaluation.ErrEmptyToR):
		return http.StatusBadRequest, "terms of reference text is empty"
	case errors.Is(err, evaluation.ErrSessionNotFound):
		return http.StatusNotFound, "evaluation not found"
	case errors.Is(err, ai.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "ai quota exceeded"
	case errors.Is(err, guidelines.ErrAuditWrite):
		return http.StatusServiceUnavailable, "guideline access audit unavailable"
	case errors.Is(err, evaluation.ErrPersistence):
		return http.StatusInternalServerError, "evaluation could not be saved"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeJSON(req *http.Request, v any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// evaluationResponse is what a caller gets back from an evaluation run
type evaluationResponse struct {
	SessionID        string                      `json:"session_id"`
	InternalAnalysis *evaluation.AnalysisSection `json:"internal_analysis"`
	ExternalAnalysis *evaluation.AnalysisSection `json:"external_analysis"`
	DeltaAnalysis    *evaluation.AnalysisSection `json:"delta_analysis"`
	OverallScore     *float64                    `json:"overall_score"`
	Status           evaluation.Status           `json:"status"`
	OrganizationID   string                      `json:"organization_id,omitempty"`
	GuidelineIDs     []string                    `json:"guideline_ids"`
	ProcessingTimeMS int64                       `json:"processing_time_ms"`
	CreatedAt        time.Time                   `json:"created_at"`
}

func toResponse(s *evaluation.Session) evaluationResponse {
	ids := s.GuidelineIDs
	if ids == nil {
		ids = []string{}
	}
	return evaluationResponse{
		SessionID:        s.ID,
		InternalAnalysis: s.Internal,
		ExternalAnalysis: s.External,
		DeltaAnalysis:    s.Delta,
		OverallScore:     s.OverallScore,
		Status:           s.Status,
		OrganizationID:   s.OrganizationID,
		GuidelineIDs:     ids,
		ProcessingTimeMS: s.ProcessingTimeMS,
		CreatedAt:        s.CreatedAt,
	}
}

// POST /v1/evaluations
// Accepts JSON or multipart/form-data with proposal_file / tor_file.
func (r *Router) handleEvaluate(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)

	cmd, err := evaluateCommand(req)
	if err != nil {
		return err
	}
	if err := middleware.ValidateIdentifier("user_id", cmd.UserID); err != nil {
		return badRequest("%v", err)
	}
	if err := middleware.ValidateEmail(cmd.UserEmail); err != nil {
		return badRequest("%v", err)
	}
	if cmd.OrganizationID != "" {
		if err := middleware.ValidateIdentifier("organization_id", cmd.OrganizationID); err != nil {
			return badRequest("%v", err)
		}
	}

	done := r.metrics.EvaluationStarted()
	sess, err := r.evals.Evaluate(req.Context(), cmd)
	if err != nil {
		done(string(evaluation.StatusFailure))
		return err
	}
	done(string(sess.Status))
	return writeJSON(w, http.StatusCreated, toResponse(sess))
}

func evaluateCommand(req *http.Request) (appevaluation.EvaluateCommand, error) {
	mt, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		var body struct {
			UserID         string `json:"user_id"`
			UserEmail      string `json:"user_email"`
			OrganizationID string `json:"organization_id"`
			ProposalText   string `json:"proposal_text"`
			TorText        string `json:"tor_text"`
		}
		if err := decodeJSON(req, &body); err != nil {
			return appevaluation.EvaluateCommand{}, err
		}
		return appevaluation.EvaluateCommand{
			UserID:         middleware.SanitizeString(body.UserID),
			UserEmail:      strings.TrimSpace(body.UserEmail),
			OrganizationID: middleware.SanitizeString(body.OrganizationID),
			ProposalText:   body.ProposalText,
			TorText:        body.TorText,
		}, nil
	}

	if err := req.ParseMultipartForm(maxMemoryBytes); err != nil {
		return appevaluation.EvaluateCommand{}, badRequest("invalid multipart body: %v", err)
	}
	cmd := appevaluation.EvaluateCommand{
		UserID:         middleware.SanitizeString(req.FormValue("user_id")),
		UserEmail:      strings.TrimSpace(req.FormValue("user_email")),
		OrganizationID: middleware.SanitizeString(req.FormValue("organization_id")),
		ProposalText:   req.FormValue("proposal_text"),
		TorText:        req.FormValue("tor_text"),
	}
	var err error
	if cmd.ProposalFile, err = formFile(req, "proposal_file"); err != nil {
		return cmd, err
	}
	if cmd.TorFile, err = formFile(req, "tor_file"); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func formFile(req *http.Request, field string) (*appevaluation.Upload, error) {
	f, hdr, err := req.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return &appevaluation.Upload{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// GET /v1/evaluations/{id}
func (r *Router) handleGetEvaluation(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return badRequest("%v", err)
	}
	sess, err := r.evals.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sess)
}

// POST /v1/evaluations/batch
// Body: {"session_ids": ["...", "..."]}
func (r *Router) handleBatchEvaluations(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		SessionIDs []string `json:"session_ids"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	if len(body.SessionIDs) == 0 {
		return badRequest("session_ids is required")
	}
	list, err := r.evals.GetMany(req.Context(), body.SessionIDs)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*evaluation.Session{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"sessions": list, "total_count": len(list)})
}

// GET /v1/evaluations?user_id=&limit=&offset=
func (r *Router) handleListEvaluations(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	userID := q.Get("user_id")
	if err := middleware.ValidateIdentifier("user_id", userID); err != nil {
		return badRequest("%v", err)
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	list, err := r.evals.ListByUser(req.Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*evaluation.Summary{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"items": list, "offset": offset})
}

// POST /v1/evaluations/{id}/followups
// Body: {"user_id": "...", "question": "...", "section": "delta"}
func (r *Router) handleFollowup(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return badRequest("%v", err)
	}
	var body struct {
		UserID   string `json:"user_id"`
		Question string `json:"question"`
		Section  string `json:"section"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	f, err := r.evals.Ask(req.Context(), appevaluation.FollowupCommand{
		SessionID: id,
		UserID:    middleware.SanitizeString(body.UserID),
		Question:  middleware.SanitizeString(body.Question),
		Section:   middleware.SanitizeString(body.Section),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, f)
}

// POST /v1/evaluations/{id}/feedback
// Body: {"user_id": "...", "rating": 4, "comment": "..."}
func (r *Router) handleFeedback(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return badRequest("%v", err)
	}
	var body struct {
		UserID  string `json:"user_id"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(req, &body); err != nil {
		return err
	}
	f, err := r.evals.Rate(req.Context(), appevaluation.FeedbackCommand{
		SessionID: id,
		UserID:    middleware.SanitizeString(body.UserID),
		Rating:    body.Rating,
		Comment:   middleware.SanitizeString(body.Comment),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, f)
}

// GET /v1/guidelines?user_email=&organization_id=
func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	email := strings.TrimSpace(q.Get("user_email"))
	if err := middleware.ValidateEmail(email); err != nil {
		return badRequest("%v", err)
	}
	orgID := q.Get("organization_id")
	if orgID != "" {
		if err := middleware.ValidateIdentifier("organization_id", orgID); err != nil {
			return badRequest("%v", err)
		}
	}

	res, err := r.guides.Resolve(req.Context(), email, orgID)
	if err != nil {
		return err
	}
	items := res.Guidelines
	if items == nil {
		items = []guidelines.VisibleGuideline{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"organization": res.Organization,
		"guidelines":   items,
		"breakdown":    res.Breakdown(),
		"total":        len(items),
	})
}

// GET /v1/guidelines/{id}/access?user_email=
func (r *Router) handleCanAccess(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateIdentifier("guideline_id", id); err != nil {
		return badRequest("%v", err)
	}
	email := strings.TrimSpace(req.URL.Query().Get("user_email"))
	if err := middleware.ValidateEmail(email); err != nil {
		return badRequest("%v", err)
	}

	ok, err := r.guides.CanAccess(req.Context(), email, id)
	if err != nil {
		return err
	}
	r.metrics.GuidelineChecked(ok)
	return writeJSON(w, http.StatusOK, map[string]any{
		"guideline_id": id,
		"user_email":   email,
		"can_access":   ok,
	})
}

// GET /v1/audit?user_email=&organization_id=&guideline_id=&access_granted=&limit=
func (r *Router) handleAudit(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	query := guidelines.AuditQuery{
		UserEmail:      strings.TrimSpace(q.Get("user_email")),
		OrganizationID: middleware.SanitizeString(q.Get("organization_id")),
		GuidelineID:    middleware.SanitizeString(q.Get("guideline_id")),
	}
	if v := q.Get("access_granted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest("access_granted must be a boolean")
		}
		query.AccessGranted = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return badRequest("limit must be an integer")
		}
		query.Limit = n
	}

	rows, err := r.guides.AuditTrail(req.Context(), query)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []*guidelines.AccessAudit{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}
