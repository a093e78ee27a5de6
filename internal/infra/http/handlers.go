package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"trajectoryd/internal/domain"
	"trajectoryd/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type verifyResponse struct {
	domain.VerificationResult
	Policy *domain.PolicyDecision `json:"policy,omitempty"`
}

type issueChallengeRequest struct {
	PublicKey              string   `json:"publicKey"`
	ExpiresIn              int      `json:"expiresIn,omitempty"`
	RequireFreshBreadcrumb bool     `json:"requireFreshBreadcrumb,omitempty"`
	AllowedH3Cells         []string `json:"allowedH3Cells,omitempty"`
}

type submitChallengeRequest struct {
	PublicKey       string             `json:"publicKey"`
	Signature       string             `json:"signature"`
	FreshBreadcrumb *domain.Breadcrumb `json:"freshBreadcrumb,omitempty"`
}

type batchRequest struct {
	Identifiers []string `json:"identifiers"`
	MinLevel    string   `json:"minLevel,omitempty"`
}

type breadcrumbProofRequest struct {
	Identifier string            `json:"identifier"`
	EpochIndex int64             `json:"epochIndex"`
	Breadcrumb domain.Breadcrumb `json:"breadcrumb"`
	LeafIndex  int64             `json:"leafIndex"`
	Path       []string          `json:"path"`
}

func (s *Server) handleVerify(c *gin.Context) {
	if s.verifySvc == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "verification unavailable")
		return
	}
	// The proof is part of the default response; callers opt out.
	includeProof, ok := boolQueryDefault(c, "include_proof", true)
	if !ok {
		return
	}
	req := usecase.VerifyRequest{
		Identifier:   c.Param("identifier"),
		MinLevel:     domain.VerificationLevel(c.DefaultQuery("min_level", string(domain.LevelBasic))),
		IncludeProof: includeProof,
	}
	result, err := s.verifySvc.Verify(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeVerifyResponse(c, result)
}

func (s *Server) handleVerifyLevel(c *gin.Context) {
	if s.verifySvc == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "verification unavailable")
		return
	}
	check, err := s.verifySvc.VerifyAtLevel(c.Request.Context(), c.Param("identifier"), domain.VerificationLevel(c.Param("level")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (s *Server) handleIssueChallenge(c *gin.Context) {
	if s.verifySvc == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "verification unavailable")
		return
	}
	var req issueChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.PublicKey == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "publicKey is required")
		return
	}
	issued, err := s.verifySvc.IssueChallenge(c.Request.Context(), usecase.IssueChallengeRequest{
		PublicKey:              req.PublicKey,
		ExpiresIn:              time.Duration(req.ExpiresIn) * time.Second,
		RequireFreshBreadcrumb: req.RequireFreshBreadcrumb,
		AllowedH3Cells:         req.AllowedH3Cells,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

func (s *Server) handleSubmitChallenge(c *gin.Context) {
	if s.verifySvc == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "verification unavailable")
		return
	}
	var req submitChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.PublicKey == "" || req.Signature == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "publicKey and signature are required")
		return
	}
	result, err := s.verifySvc.SubmitChallenge(c.Request.Context(), usecase.SubmitChallengeRequest{
		ChallengeID:     c.Param("challenge_id"),
		PublicKey:       req.PublicKey,
		Signature:       req.Signature,
		FreshBreadcrumb: req.FreshBreadcrumb,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeVerifyResponse(c, result)
}

func (s *Server) handleVerifyBatch(c *gin.Context) {
	if s.verifySvc == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "verification unavailable")
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	batch, err := s.verifySvc.VerifyBatch(c.Request.Context(), req.Identifiers, domain.VerificationLevel(req.MinLevel))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) handleVerifyBreadcrumb(c *gin.Context) {
	if s.verifySvc == nil {
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "verification unavailable")
		return
	}
	var req breadcrumbProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	check, err := s.verifySvc.VerifyBreadcrumbInclusion(c.Request.Context(), usecase.BreadcrumbProofRequest{
		Identifier: req.Identifier,
		EpochIndex: req.EpochIndex,
		Breadcrumb: req.Breadcrumb,
		LeafIndex:  req.LeafIndex,
		Path:       req.Path,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (s *Server) writeVerifyResponse(c *gin.Context, result *domain.VerificationResult) {
	out := verifyResponse{VerificationResult: *result}
	if s.policy != nil {
		decision, err := s.policy.Evaluate(c.Request.Context(), *result)
		if err != nil {
			writeError(c, err)
			return
		}
		out.Policy = &decision
	}
	c.JSON(http.StatusOK, out)
}

// boolQueryDefault parses an optional boolean query parameter, returning
// def when absent. On a malformed value the error response has already
// been written.
func boolQueryDefault(c *gin.Context, name string, def bool) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_QUERY", "invalid "+name)
		return false, false
	}
	return parsed, true
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		status, code = http.StatusBadRequest, "INVALID_IDENTIFIER"
	case errors.Is(err, domain.ErrInvalidLevel):
		status, code = http.StatusBadRequest, "INVALID_LEVEL"
	case errors.Is(err, domain.ErrTooManyIdentifiers):
		status, code = http.StatusBadRequest, "TOO_MANY_IDENTIFIERS"
	case errors.Is(err, domain.ErrProofInvalid):
		status, code = http.StatusBadRequest, "INVALID_PROOF"
	case errors.Is(err, domain.ErrIdentityNotFound):
		status, code = http.StatusNotFound, "IDENTITY_NOT_FOUND"
	case errors.Is(err, domain.ErrEpochNotFound):
		status, code = http.StatusNotFound, "EPOCH_NOT_FOUND"
	case errors.Is(err, domain.ErrChallengeNotFound):
		status, code = http.StatusNotFound, "CHALLENGE_NOT_FOUND"
	case errors.Is(err, domain.ErrChallengeExpired):
		status, code = http.StatusGone, "CHALLENGE_EXPIRED"
	case errors.Is(err, domain.ErrChallengeMismatch):
		status, code = http.StatusForbidden, "PUBLIC_KEY_MISMATCH"
	case errors.Is(err, domain.ErrSignatureInvalid):
		status, code = http.StatusUnauthorized, "INVALID_SIGNATURE"
	case errors.Is(err, domain.ErrBreadcrumbRequired):
		status, code = http.StatusBadRequest, "BREADCRUMB_REQUIRED"
	case errors.Is(err, domain.ErrBreadcrumbStale):
		status, code = http.StatusBadRequest, "BREADCRUMB_STALE"
	case errors.Is(err, domain.ErrBreadcrumbLocationInvalid):
		status, code = http.StatusBadRequest, "BREADCRUMB_LOCATION_INVALID"
	case errors.Is(err, domain.ErrBreadcrumbSignature):
		status, code = http.StatusUnauthorized, "INVALID_BREADCRUMB_SIGNATURE"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
