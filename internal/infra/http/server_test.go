package http

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trajectoryd/internal/config"
	"trajectoryd/internal/domain"
	"trajectoryd/internal/infra/challengemem"
	"trajectoryd/internal/infra/crypto"
	"trajectoryd/internal/infra/identmem"
	"trajectoryd/internal/infra/merkle"
	"trajectoryd/internal/infra/ratelimit"
	"trajectoryd/internal/usecase"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	srv   *Server
	ident *identmem.Store
	now   time.Time

	publicKey string
	priv      ed25519.PrivateKey
}

func newTestEnv(t *testing.T, cfg config.Config, limiter domain.RateLimiter) *testEnv {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	env := &testEnv{
		ident:     identmem.New(),
		now:       time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		publicKey: hex.EncodeToString(pub),
		priv:      priv,
	}
	clock := func() time.Time { return env.now }
	cryptoSvc := crypto.NewService()
	challenges := challengemem.NewWithClock(clock)
	verifySvc := &usecase.VerificationService{
		Identities: env.ident,
		Crypto:     cryptoSvc,
		Inclusion:  &merkle.Service{},
		Chain:      &usecase.ChainVerifier{Identities: env.ident, Crypto: cryptoSvc},
		Challenges: &usecase.ChallengeManager{
			Identities: env.ident,
			Store:      challenges,
			Crypto:     cryptoSvc,
			Clock:      clock,
		},
		Clock: clock,
	}
	env.srv = NewServerWithDeps(cfg, ServerDeps{
		Verify:      verifySvc,
		Challenges:  challenges,
		RateLimiter: limiter,
	})
	return env
}

func (e *testEnv) seedIdentity(t *testing.T, breadcrumbs int64, trust float64, epochCount int) {
	t.Helper()
	e.ident.PutRecord(domain.IdentityRecord{
		PublicKey:       e.publicKey,
		Handle:          "alice",
		TrustScore:      trust,
		BreadcrumbCount: breadcrumbs,
		UpdatedAt:       e.now.Add(-time.Hour),
	})
	if epochCount > 0 {
		e.ident.PutEpochs(e.publicKey, e.buildChain(t, epochCount))
	}
}

func (e *testEnv) buildChain(t *testing.T, n int) []domain.Epoch {
	t.Helper()
	svc := crypto.NewService()
	start := e.now.Add(-time.Duration(n) * 24 * time.Hour)
	epochs := make([]domain.Epoch, 0, n)
	prevHash := ""
	for i := 0; i < n; i++ {
		epoch := domain.Epoch{
			EpochIndex:    int64(i),
			MerkleRoot:    fmt.Sprintf("root-%d", i),
			StartTime:     start.Add(time.Duration(i) * 24 * time.Hour),
			EndTime:       start.Add(time.Duration(i+1) * 24 * time.Hour),
			BlockCount:    10,
			PrevEpochHash: prevHash,
		}
		signable, err := svc.EpochSigningBytes(epoch)
		if err != nil {
			t.Fatalf("epoch signing bytes: %v", err)
		}
		sum := sha256.Sum256(signable)
		epoch.EpochHash = hex.EncodeToString(sum[:])
		epoch.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(e.priv, signable))
		epochs = append(epochs, epoch)
		prevHash = epoch.EpochHash
	}
	return epochs
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Code != code {
		t.Fatalf("error code = %q, want %q", resp.Code, code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["status"] != "ok" || resp["mode"] != "no-db" {
		t.Fatalf("healthz = %v", resp)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 120, 60, 3)

	rec := env.do(t, http.MethodGet, "/v1/verify/"+env.publicKey+"?min_level=advanced&include_proof=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	decodeJSON(t, rec, &resp)
	if !resp.Verified || resp.VerificationLevel != domain.LevelAdvanced {
		t.Fatalf("response = %+v", resp.VerificationResult)
	}
	if !resp.ChainValid || resp.ProofHash != "ed25519:root-2" {
		t.Fatalf("chain fields = valid:%v proof:%q", resp.ChainValid, resp.ProofHash)
	}
	if resp.TrajectoryDays != 3 {
		t.Fatalf("trajectoryDays = %d, want 3", resp.TrajectoryDays)
	}
}

func TestVerifyEndpoint_ProofIncludedByDefault(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 120, 60, 3)

	rec := env.do(t, http.MethodGet, "/v1/verify/"+env.publicKey+"?min_level=standard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	decodeJSON(t, rec, &resp)
	if !resp.ChainValid || resp.ProofHash != "ed25519:root-2" {
		t.Fatalf("default response chain fields = valid:%v proof:%q, want proof without include_proof param", resp.ChainValid, resp.ProofHash)
	}

	rec = env.do(t, http.MethodGet, "/v1/verify/"+env.publicKey+"?include_proof=false", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("opt-out status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp = verifyResponse{}
	decodeJSON(t, rec, &resp)
	if resp.ProofHash != "" {
		t.Fatalf("proofHash = %q after include_proof=false", resp.ProofHash)
	}
}

func TestVerifyEndpoint_ByHandle(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 10, 0, 0)

	rec := env.do(t, http.MethodGet, "/v1/verify/@alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	decodeJSON(t, rec, &resp)
	if resp.PublicKey != env.publicKey {
		t.Fatalf("resolved key = %q, want %q", resp.PublicKey, env.publicKey)
	}
}

func TestVerifyEndpoint_Errors(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 10, 0, 0)

	rec := env.do(t, http.MethodGet, "/v1/verify/@nobody", nil)
	assertErrorCode(t, rec, http.StatusNotFound, "IDENTITY_NOT_FOUND")

	rec = env.do(t, http.MethodGet, "/v1/verify/@alice?min_level=platinum", nil)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_LEVEL")

	rec = env.do(t, http.MethodGet, "/v1/verify/@alice?include_proof=maybe", nil)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_QUERY")
}

func TestVerifyLevelEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 60, 30, 0)

	rec := env.do(t, http.MethodGet, "/v1/verify/@alice/level/advanced", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp domain.LevelCheck
	decodeJSON(t, rec, &resp)
	if resp.MeetsLevel {
		t.Fatal("standard identity reported as meeting advanced")
	}
	if resp.ActualLevel != domain.LevelStandard {
		t.Fatalf("actualLevel = %q", resp.ActualLevel)
	}
	if resp.Requirements.Breadcrumbs != 100 || resp.Requirements.Trust != 50 {
		t.Fatalf("requirements = %+v", resp.Requirements)
	}

	rec = env.do(t, http.MethodGet, "/v1/verify/@alice/level/platinum", nil)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_LEVEL")
}

func TestChallengeFlow(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 120, 60, 2)

	rec := env.do(t, http.MethodPost, "/v1/verify/challenge", issueChallengeRequest{PublicKey: env.publicKey})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue status = %d, body %s", rec.Code, rec.Body.String())
	}
	var issued usecase.IssuedChallenge
	decodeJSON(t, rec, &issued)
	if issued.ChallengeID == "" || issued.Challenge == "" {
		t.Fatalf("issued = %+v", issued)
	}

	signable, err := crypto.NewService().ChallengeSigningBytes(issued.ChallengeID, issued.Challenge, env.publicKey)
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	submit := submitChallengeRequest{
		PublicKey: env.publicKey,
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(env.priv, signable)),
	}

	rec = env.do(t, http.MethodPost, "/v1/verify/challenge/"+issued.ChallengeID, submit)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp verifyResponse
	decodeJSON(t, rec, &resp)
	if !resp.Verified || !resp.ChainValid {
		t.Fatalf("submit response = %+v", resp.VerificationResult)
	}

	rec = env.do(t, http.MethodPost, "/v1/verify/challenge/"+issued.ChallengeID, submit)
	assertErrorCode(t, rec, http.StatusNotFound, "CHALLENGE_NOT_FOUND")
}

func TestChallengeEndpoint_Errors(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 120, 60, 0)

	rec := env.do(t, http.MethodPost, "/v1/verify/challenge", issueChallengeRequest{})
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_REQUEST")

	otherKey := make([]byte, ed25519.PublicKeySize)
	rec = env.do(t, http.MethodPost, "/v1/verify/challenge", issueChallengeRequest{PublicKey: hex.EncodeToString(otherKey)})
	assertErrorCode(t, rec, http.StatusNotFound, "IDENTITY_NOT_FOUND")

	rec = env.do(t, http.MethodPost, "/v1/verify/challenge", issueChallengeRequest{PublicKey: env.publicKey})
	var issued usecase.IssuedChallenge
	decodeJSON(t, rec, &issued)

	rec = env.do(t, http.MethodPost, "/v1/verify/challenge/"+issued.ChallengeID, submitChallengeRequest{
		PublicKey: env.publicKey,
		Signature: base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize)),
	})
	assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_SIGNATURE")

	env.now = env.now.Add(6 * time.Minute)
	rec = env.do(t, http.MethodPost, "/v1/verify/challenge/"+issued.ChallengeID, submitChallengeRequest{
		PublicKey: env.publicKey,
		Signature: base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize)),
	})
	assertErrorCode(t, rec, http.StatusGone, "CHALLENGE_EXPIRED")
}

func TestBatchEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.seedIdentity(t, 120, 60, 0)

	rec := env.do(t, http.MethodPost, "/v1/verify/batch", batchRequest{
		Identifiers: []string{env.publicKey, "@alice", "@nobody"},
		MinLevel:    "standard",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp usecase.BatchVerification
	decodeJSON(t, rec, &resp)
	if resp.TotalCount != 3 || resp.VerifiedCount != 2 {
		t.Fatalf("counts = %d/%d, want 2/3", resp.VerifiedCount, resp.TotalCount)
	}
	if resp.Results[2].Error == "" {
		t.Fatal("failed entry missing error")
	}
}

func TestBatchEndpoint_TooMany(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.srv.verifySvc.BatchMax = 2

	rec := env.do(t, http.MethodPost, "/v1/verify/batch", batchRequest{
		Identifiers: []string{"@a", "@b", "@c"},
	})
	assertErrorCode(t, rec, http.StatusBadRequest, "TOO_MANY_IDENTIFIERS")
}

func TestRateLimit(t *testing.T) {
	cfg := config.Config{
		RateLimitRequests:      2,
		RateLimitWindowSeconds: 60,
	}
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
	env := newTestEnv(t, cfg, limiter)
	env.seedIdentity(t, 10, 0, 0)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/v1/verify/@alice", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
		if rec.Header().Get("RateLimit-Limit") != "2" {
			t.Fatalf("RateLimit-Limit = %q", rec.Header().Get("RateLimit-Limit"))
		}
	}

	rec := env.do(t, http.MethodGet, "/v1/verify/@alice", nil)
	assertErrorCode(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on throttled response")
	}
}

func TestBreadcrumbProofEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.ident.PutRecord(domain.IdentityRecord{PublicKey: env.publicKey, Handle: "alice"})

	crumb := domain.Breadcrumb{
		H3Cell:    "8928308280fffff",
		Timestamp: env.now.Add(-time.Hour),
	}
	payload, err := crypto.NewService().BreadcrumbSigningBytes(crumb)
	if err != nil {
		t.Fatalf("breadcrumb payload: %v", err)
	}
	leaf := merkle.LeafHash(payload)
	other := merkle.LeafHash([]byte("other"))
	root, err := merkle.Root([][]byte{leaf, other})
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	path, err := merkle.InclusionProof([][]byte{leaf, other}, 0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	env.ident.PutEpochs(env.publicKey, []domain.Epoch{{
		EpochIndex: 0,
		MerkleRoot: hex.EncodeToString(root),
		BlockCount: 2,
	}})

	hexPath := make([]string, 0, len(path))
	for _, node := range path {
		hexPath = append(hexPath, hex.EncodeToString(node))
	}
	rec := env.do(t, http.MethodPost, "/v1/verify/breadcrumb", breadcrumbProofRequest{
		Identifier: "@alice",
		EpochIndex: 0,
		Breadcrumb: crumb,
		LeafIndex:  0,
		Path:       hexPath,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var check domain.InclusionCheck
	decodeJSON(t, rec, &check)
	if !check.Included || check.BlockCount != 2 {
		t.Fatalf("check = %+v", check)
	}

	rec = env.do(t, http.MethodPost, "/v1/verify/breadcrumb", breadcrumbProofRequest{
		Identifier: "@alice",
		EpochIndex: 9,
		Breadcrumb: crumb,
	})
	assertErrorCode(t, rec, http.StatusNotFound, "EPOCH_NOT_FOUND")
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	rec := env.do(t, http.MethodGet, "/v1/unknown", nil)
	assertErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}
