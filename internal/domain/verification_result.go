package domain

import "time"

// VerificationResult answers both questions a relying party can ask:
// Verified says whether the identity meets the requested level, ChainValid
// says whether the epoch chain itself withstood tampering checks. The two
// are reported independently.
type VerificationResult struct {
	Verified          bool              `json:"verified"`
	PublicKey         string            `json:"publicKey"`
	Handle            string            `json:"handle,omitempty"`
	TrustScore        float64           `json:"trustScore"`
	BreadcrumbCount   int64             `json:"breadcrumbCount"`
	TrajectoryDays    int64             `json:"trajectoryDays"`
	ProofHash         string            `json:"proofHash,omitempty"`
	VerifiedSince     *time.Time        `json:"verifiedSince,omitempty"`
	VerificationLevel VerificationLevel `json:"verificationLevel"`
	ChainValid        bool              `json:"chainValid"`
	LastActivity      *time.Time        `json:"lastActivity,omitempty"`
}

// ChainCheck is the outcome of walking one identity's epoch chain.
type ChainCheck struct {
	Valid      bool   `json:"valid"`
	MerkleRoot string `json:"merkleRoot,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LevelCheck is the outcome of a threshold-only verification.
type LevelCheck struct {
	MeetsLevel   bool              `json:"meetsLevel"`
	ActualLevel  VerificationLevel `json:"actualLevel"`
	Requirements LevelRequirements `json:"requirements"`
	Current      LevelMetrics      `json:"current"`
}

// LevelMetrics are the identity's present metrics, echoed so callers can
// report how far an identity is from a target level.
type LevelMetrics struct {
	Breadcrumbs int64   `json:"breadcrumbs"`
	Trust       float64 `json:"trust"`
}

// InclusionCheck is the outcome of checking one breadcrumb's merkle audit
// path against the signed root of the epoch that committed it.
type InclusionCheck struct {
	Included   bool   `json:"included"`
	EpochIndex int64  `json:"epochIndex"`
	MerkleRoot string `json:"merkleRoot"`
	BlockCount int64  `json:"blockCount"`
}

// PolicyDecision is an optional relying-party policy verdict over a
// verification result.
type PolicyDecision struct {
	Allow      bool     `json:"allow"`
	Reasons    []string `json:"reasons,omitempty"`
	BundleID   string   `json:"bundleId,omitempty"`
	BundleHash string   `json:"bundleHash,omitempty"`
}
