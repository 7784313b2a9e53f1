package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"disputeflow/auth"
	"disputeflow/dispute"
	"disputeflow/reputation"
)

type ctxKey string

const ctxKeyUserID ctxKey = "userID"

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyEmail(ctx context.Context, userID string) (*auth.User, error)
}

type disputeService interface {
	Create(ctx context.Context, draft dispute.Draft) (dispute.Dispute, error)
	Get(ctx context.Context, id string) (dispute.Dispute, error)
	ListForParty(ctx context.Context, userID string) ([]dispute.Dispute, error)
}

type joinService interface {
	Join(ctx context.Context, codeOrLink, joinerID string) (dispute.Dispute, error)
}

type truthService interface {
	SubmitTruth(ctx context.Context, params dispute.SubmitTruthParams) (dispute.Ack, error)
}

type signatureService interface {
	Attach(ctx context.Context, disputeID, partyID string, image []byte) (dispute.Dispute, error)
}

type lifecycleService interface {
	Appeal(ctx context.Context, disputeID, partyID string) (dispute.Dispute, error)
	RequestExpertReview(ctx context.Context, disputeID, partyID string) (dispute.Dispute, error)
	Rate(ctx context.Context, disputeID, partyID string, score int, comment string) (dispute.Dispute, error)
}

type resolveService interface {
	Retry(ctx context.Context, disputeID string) error
}

type reputationService interface {
	Get(ctx context.Context, userID string) (reputation.Profile, error)
}

// Server wires the HTTP surface to the lifecycle services.
type Server struct {
	authService       authService
	disputeService    disputeService
	joinService       joinService
	truthService      truthService
	signatureService  signatureService
	lifecycleService  lifecycleService
	resolveService    resolveService
	reputationService reputationService
	shareHost         string
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("/api/me/verify", s.requireAuth(s.handleVerifyEmail))
	mux.HandleFunc("/api/join", s.requireAuth(s.handleJoin))
	mux.HandleFunc("/api/disputes", s.requireAuth(s.handleDisputes))
	mux.HandleFunc("/api/disputes/", s.requireAuth(s.handleDisputeDetail))
	mux.HandleFunc("/api/users/", s.requireAuth(s.handleUserDetail))
	return mux
}

// requireAuth extracts and verifies the bearer token, placing the caller's
// user ID in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID)))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, userResponseFrom(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  userResponseFrom(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	user, err := s.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, userResponseFrom(*user))
}

// handleVerifyEmail raises the caller's verification level after the email
// confirmation flow completes.
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	user, err := s.authService.VerifyEmail(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, userResponseFrom(*user))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, _ := r.Context().Value(ctxKeyUserID).(string)

	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeError(w, http.StatusBadRequest, "target share code or link is required")
		return
	}

	rec, err := s.joinService.Join(r.Context(), req.Target, userID)
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.disputeResponseFrom(rec))
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)

	switch r.Method {
	case http.MethodGet:
		records, err := s.disputeService.ListForParty(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		items := make([]disputeResponse, 0, len(records))
		for _, rec := range records {
			items = append(items, s.disputeResponseFrom(rec))
		}
		writeJSON(w, http.StatusOK, listResponse[disputeResponse]{Items: items, Total: len(items)})

	case http.MethodPost:
		var req createDisputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		draft := dispute.Draft{
			PartyA:            userID,
			Title:             req.Title,
			Description:       req.Description,
			Category:          req.Category,
			DisputeValue:      req.DisputeValue,
			Urgency:           dispute.Urgency(req.Urgency),
			RequiresContract:  req.RequiresContract,
			RequiresSignature: req.RequiresSignature,
			RequiresEscrow:    req.RequiresEscrow,
			IsPublic:          req.IsPublic,
			Tags:              req.Tags,
		}
		rec, err := s.disputeService.Create(r.Context(), draft)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, s.disputeResponseFrom(rec))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleDisputeDetail serves /api/disputes/{id} and its subresources.
func (s *Server) handleDisputeDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/disputes/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "dispute id is required")
		return
	}

	disputeID, sub, _ := strings.Cut(rest, "/")
	userID, _ := r.Context().Value(ctxKeyUserID).(string)

	switch sub {
	case "":
		s.handleGetDispute(w, r, disputeID, userID)
	case "truths":
		s.handleSubmitTruth(w, r, disputeID, userID)
	case "signature":
		s.handleAttachSignature(w, r, disputeID, userID)
	case "appeal":
		s.handleAppeal(w, r, disputeID, userID)
	case "review":
		s.handleRequestReview(w, r, disputeID, userID)
	case "retry":
		s.handleRetry(w, r, disputeID)
	case "ratings":
		s.handleRate(w, r, disputeID, userID)
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request, disputeID, userID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, err := s.disputeService.Get(r.Context(), disputeID)
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}
	if !rec.IsPublic && !rec.IsParticipant(userID) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	writeJSON(w, http.StatusOK, s.disputeResponseFrom(rec))
}

func (s *Server) handleSubmitTruth(w http.ResponseWriter, r *http.Request, disputeID, userID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Content     string               `json:"content"`
		Attachments []dispute.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ack, err := s.truthService.SubmitTruth(r.Context(), dispute.SubmitTruthParams{
		DisputeID:   disputeID,
		PartyID:     userID,
		Content:     req.Content,
		Attachments: req.Attachments,
	})
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, truthAckResponse{
		TruthID:             ack.TruthID,
		ResolutionTriggered: ack.ResolutionTriggered,
	})
}

func (s *Server) handleAttachSignature(w http.ResponseWriter, r *http.Request, disputeID, userID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Image []byte `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Image) == 0 {
		writeError(w, http.StatusBadRequest, "signature image is required")
		return
	}

	rec, err := s.signatureService.Attach(r.Context(), disputeID, userID, req.Image)
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.disputeResponseFrom(rec))
}

func (s *Server) handleAppeal(w http.ResponseWriter, r *http.Request, disputeID, userID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, err := s.lifecycleService.Appeal(r.Context(), disputeID, userID)
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.disputeResponseFrom(rec))
}

func (s *Server) handleRequestReview(w http.ResponseWriter, r *http.Request, disputeID, userID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, err := s.lifecycleService.RequestExpertReview(r.Context(), disputeID, userID)
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.disputeResponseFrom(rec))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, disputeID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.resolveService.Retry(r.Context(), disputeID); err != nil {
		s.writeDisputeError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request, disputeID, userID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Score   int    `json:"score"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.lifecycleService.Rate(r.Context(), disputeID, userID, req.Score, req.Comment)
	if err != nil {
		s.writeDisputeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.disputeResponseFrom(rec))
}

// handleUserDetail serves /api/users/{id}/reputation.
func (s *Server) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	targetID, sub, _ := strings.Cut(rest, "/")
	if targetID == "" || sub != "reputation" {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	profile, err := s.reputationService.Get(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, reputation.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, reputationResponse{
		UserID:         profile.UserID,
		Truthfulness:   profile.Score.Truthfulness,
		Fairness:       profile.Score.Fairness,
		Responsiveness: profile.Score.Responsiveness,
		Overall:        profile.Score.Overall,
		DisputesTotal:  profile.Stats.Total,
		DisputesWon:    profile.Stats.Won,
		WinRate:        profile.Stats.WinRate(),
		Level:          profile.Level(),
	})
}

// writeDisputeError maps domain errors onto HTTP status codes.
func (s *Server) writeDisputeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispute.ErrNotFound):
		writeError(w, http.StatusNotFound, "dispute not found")
	case errors.Is(err, dispute.ErrForbidden):
		writeError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, dispute.ErrAlreadyJoined),
		errors.Is(err, dispute.ErrSelfJoin),
		errors.Is(err, dispute.ErrDuplicateSubmission),
		errors.Is(err, dispute.ErrAlreadySigned),
		errors.Is(err, dispute.ErrAlreadyRated),
		errors.Is(err, dispute.ErrNotClaimed),
		errors.Is(err, dispute.ErrEvidenceClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispute.ErrSignatureNotRequired),
		errors.Is(err, dispute.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dispute.ErrGeneratorTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, dispute.ErrGeneratorFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	Verification string `json:"verification"`
	CreatedAt    string `json:"createdAt"`
}

func userResponseFrom(u auth.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Verification: string(u.Verification),
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
}

type createDisputeRequest struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	DisputeValue      int64    `json:"disputeValue"`
	Urgency           string   `json:"urgency"`
	RequiresContract  bool     `json:"requiresContract"`
	RequiresSignature bool     `json:"requiresSignature"`
	RequiresEscrow    bool     `json:"requiresEscrow"`
	IsPublic          bool     `json:"isPublic"`
	Tags              []string `json:"tags"`
}

type truthAckResponse struct {
	TruthID             string `json:"truthId"`
	ResolutionTriggered bool   `json:"resolutionTriggered"`
}

type truthResponse struct {
	ID          string               `json:"id"`
	PartyID     string               `json:"partyId"`
	Content     string               `json:"content"`
	Attachments []dispute.Attachment `json:"attachments,omitempty"`
	CreatedAt   string               `json:"createdAt"`
}

type resolutionResponse struct {
	Summary      string  `json:"summary"`
	Decision     string  `json:"decision"`
	Reasoning    string  `json:"reasoning"`
	Confidence   float64 `json:"confidence"`
	WinnerID     *string `json:"winnerId,omitempty"`
	Compensation *int64  `json:"compensation,omitempty"`
	Model        string  `json:"model"`
	CreatedAt    string  `json:"createdAt"`
}

type disputeResponse struct {
	ID                string              `json:"id"`
	ShareCode         string              `json:"shareCode"`
	ShareLink         string              `json:"shareLink"`
	PartyA            string              `json:"partyA"`
	PartyB            *string             `json:"partyB,omitempty"`
	Status            string              `json:"status"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Category          string              `json:"category"`
	DisputeValue      int64               `json:"disputeValue"`
	Urgency           string              `json:"urgency"`
	Priority          string              `json:"priority"`
	FeeMultiplier     float64             `json:"feeMultiplier"`
	RequiresSignature bool                `json:"requiresSignature"`
	FullyExecuted     bool                `json:"fullyExecuted"`
	IsPublic          bool                `json:"isPublic"`
	Tags              []string            `json:"tags,omitempty"`
	Truths            []truthResponse     `json:"truths"`
	Resolution        *resolutionResponse `json:"resolution,omitempty"`
	CreatedAt         string              `json:"createdAt"`
	ResolvedAt        *string             `json:"resolvedAt,omitempty"`
}

func (s *Server) disputeResponseFrom(rec dispute.Dispute) disputeResponse {
	resp := disputeResponse{
		ID:                rec.ID,
		ShareCode:         rec.ShareCode,
		ShareLink:         dispute.ShareLink(s.shareHost, rec.ID),
		PartyA:            rec.PartyA,
		PartyB:            rec.PartyB,
		Status:            string(rec.Status),
		Title:             rec.Title,
		Description:       rec.Description,
		Category:          rec.Category,
		DisputeValue:      rec.DisputeValue,
		Urgency:           string(rec.Urgency),
		Priority:          string(rec.Priority()),
		FeeMultiplier:     rec.Urgency.FeeMultiplier(),
		RequiresSignature: rec.RequiresSignature,
		FullyExecuted:     rec.IsFullyExecuted(),
		IsPublic:          rec.IsPublic,
		Tags:              rec.Tags,
		Truths:            make([]truthResponse, 0, len(rec.Truths)),
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
	}
	for _, t := range rec.Truths {
		resp.Truths = append(resp.Truths, truthResponse{
			ID:          t.ID,
			PartyID:     t.PartyID,
			Content:     t.Content,
			Attachments: t.Attachments,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}
	if rec.Resolution != nil {
		resp.Resolution = &resolutionResponse{
			Summary:      rec.Resolution.Summary,
			Decision:     rec.Resolution.Decision,
			Reasoning:    rec.Resolution.Reasoning,
			Confidence:   rec.Resolution.Confidence,
			WinnerID:     rec.Resolution.WinnerID,
			Compensation: rec.Resolution.Compensation,
			Model:        rec.Resolution.Model,
			CreatedAt:    rec.Resolution.CreatedAt.Format(time.RFC3339),
		}
	}
	if rec.ResolvedAt != nil {
		v := rec.ResolvedAt.Format(time.RFC3339)
		resp.ResolvedAt = &v
	}
	return resp
}

type reputationResponse struct {
	UserID         string  `json:"userId"`
	Truthfulness   int     `json:"truthfulness"`
	Fairness       int     `json:"fairness"`
	Responsiveness int     `json:"responsiveness"`
	Overall        int     `json:"overall"`
	DisputesTotal  int     `json:"disputesTotal"`
	DisputesWon    int     `json:"disputesWon"`
	WinRate        float64 `json:"winRate"`
	Level          string  `json:"level"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
