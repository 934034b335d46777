package domain

// Kind describes one aggregate type: the tag used for uids and storage, and
// optionally the relation its values maintain to another kind.
type Kind struct {
	// Tag prefixes allocated uids, e.g. "CTTerm" yields CTTerm_000001.
	Tag string
	// Relation names the derived relationship kept for RelatedIDs. Empty
	// when the kind has no related entities.
	Relation string
	// RelatedKind is the tag related entities must carry. Empty accepts any kind.
	RelatedKind string
}
