package merkle

// Service adapts the tree primitives to the verifier interface the
// verification facade consumes.
type Service struct{}

func (s *Service) LeafHash(payload []byte) []byte {
	return LeafHash(payload)
}

func (s *Service) VerifyInclusion(leafHash []byte, leafIndex, treeSize int64, path [][]byte, root []byte) (bool, error) {
	return VerifyInclusionProof(leafHash, int(leafIndex), int(treeSize), path, root)
}
