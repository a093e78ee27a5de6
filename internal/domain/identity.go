package domain

import "time"

// IdentityRecord is the stored view of an identity. Numeric fields are
// defaulted at the store boundary, never optional here.
type IdentityRecord struct {
	PublicKey       string    `json:"publicKey"`
	Handle          string    `json:"handle,omitempty"`
	TrustScore      float64   `json:"trustScore"`
	BreadcrumbCount int64     `json:"breadcrumbCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Epoch is a signed, hash-linked batch summary of breadcrumbs over a time
// window. Immutable once published; epochs for one identity form a single
// non-branching chain ordered by EpochIndex.
type Epoch struct {
	EpochIndex    int64     `json:"epochIndex"`
	MerkleRoot    string    `json:"merkleRoot"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	BlockCount    int64     `json:"blockCount"`
	PrevEpochHash string    `json:"prevEpochHash"`
	EpochHash     string    `json:"epochHash"`
	Signature     string    `json:"signature"`
}

// Breadcrumb is a signed location attestation. Only fresh breadcrumbs
// submitted with challenges flow through this service; historical ones are
// committed inside epoch merkle roots.
type Breadcrumb struct {
	H3Cell    string    `json:"h3Cell"`
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"`
}
