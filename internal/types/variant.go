package types

// Variant is one format-specific rendering of a Document
type Variant struct {
	Format Format `json:"format"`
	Body   string `json:"body"`

	// DerivedFrom is the document the body was encoded from (read-only)
	DerivedFrom *Document `json:"-"`
}
