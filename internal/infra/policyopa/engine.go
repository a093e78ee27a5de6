// Package policyopa evaluates an optional relying-party policy bundle over
// verification results. The bundle decides allow/deny with reasons; it can
// tighten what a caller accepts (e.g. require chain_valid at level
// advanced) without touching the verification core.
package policyopa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"trajectoryd/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.trajectoryd.policy.result"

type Engine struct {
	query      rego.PreparedEvalQuery
	bundleID   string
	bundleHash string
}

// NewEngineFromBundlePath compiles the rego bundle at bundlePath and
// prepares the policy query.
func NewEngineFromBundlePath(ctx context.Context, bundlePath, bundleID string) (*Engine, error) {
	bundleHash, err := computeBundleHash(bundlePath)
	if err != nil {
		return nil, err
	}

	r := rego.New(
		rego.Query(defaultQuery),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &Engine{
		query:      prepared,
		bundleID:   bundleID,
		bundleHash: bundleHash,
	}, nil
}

func (e *Engine) Evaluate(ctx context.Context, result domain.VerificationResult) (domain.PolicyDecision, error) {
	if e == nil {
		return domain.PolicyDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(result))
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyDecision{}, errors.New("empty policy result")
	}

	payload, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	var decision domain.PolicyDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.PolicyDecision{}, err
	}
	sort.Strings(decision.Reasons)
	decision.BundleID = e.bundleID
	decision.BundleHash = e.bundleHash
	return decision, nil
}

// computeBundleHash digests every .rego and .json file in the bundle in
// path order, so the hash pins exactly what was evaluated.
func computeBundleHash(bundlePath string) (string, error) {
	fsys := os.DirFS(bundlePath)
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	digest := sha256.New()
	for _, path := range paths {
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return "", err
		}
		digest.Write([]byte(path))
		digest.Write([]byte{0})
		digest.Write(content)
		digest.Write([]byte{0})
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
