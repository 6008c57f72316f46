// Package curator routes raw evidence into an exposed/buried/excluded
// bundle. Items whose disposition decides their fate are routed without
// any model call; the rest are scored in concurrent batches.
package curator

import "time"

// Disposition records how an item was handled upstream.
type Disposition string

// Dispositions.
const (
	// DispositionDisclosed items were fully disclosed and keep their content.
	DispositionDisclosed Disposition = "disclosed"
	// DispositionTransaction items were hidden behind a transaction; only
	// the transaction metadata may be kept.
	DispositionTransaction Disposition = "transaction"
	// DispositionUnresolved items need scoring.
	DispositionUnresolved Disposition = "unresolved"
)

// Kind is the source category of an item.
type Kind string

// Item kinds.
const (
	KindMessage  Kind = "message"
	KindDocument Kind = "document"
	KindMedia    Kind = "media"
)

// Transaction is the metadata that survives when content is withheld.
type Transaction struct {
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Account   string    `json:"account"`
}

// Item is one unit of raw evidence.
type Item struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Disposition Disposition `json:"disposition"`
	// Content is the full text, present only for disclosed items.
	Content string `json:"content,omitempty"`
	// Summary is always present, even when Content is withheld.
	Summary     string            `json:"summary"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Transaction *Transaction      `json:"transaction,omitempty"`
}

// buried returns the item stripped to what may be kept for a
// transaction-hidden item.
func (it Item) buried() Item {
	out := Item{
		ID:          it.ID,
		Kind:        it.Kind,
		Disposition: it.Disposition,
		Summary:     it.Summary,
	}
	if it.Transaction != nil {
		tx := *it.Transaction
		out.Transaction = &tx
	}
	return out
}

// hidden reports whether the item belongs in the buried list when included.
func (it Item) hidden() bool {
	return it.Disposition == DispositionTransaction || it.Transaction != nil
}

// Score is the additive inclusion score for one item.
type Score struct {
	Relevance     float64 `json:"relevance"`
	Corroboration float64 `json:"corroboration"`
	Thematic      float64 `json:"thematic"`
	Substance     float64 `json:"substance"`
}

// Total sums the components.
func (s Score) Total() float64 {
	return s.Relevance + s.Corroboration + s.Thematic + s.Substance
}

// ExcludedItem keeps a rejected item with its score and rationale so a
// reviewer can rescue it.
type ExcludedItem struct {
	Item      Item    `json:"item"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// Bundle is the curated evidence.
type Bundle struct {
	Exposed  []Item         `json:"exposed"`
	Buried   []Item         `json:"buried"`
	Excluded []ExcludedItem `json:"excluded"`
}

// NewBundle returns an empty bundle with non-nil lists.
func NewBundle() Bundle {
	return Bundle{Exposed: []Item{}, Buried: []Item{}, Excluded: []ExcludedItem{}}
}

// Usable reports whether id is exposed or buried, i.e. may be cited by
// generated output.
func (b Bundle) Usable(id string) bool {
	for _, it := range b.Exposed {
		if it.ID == id {
			return true
		}
	}
	for _, it := range b.Buried {
		if it.ID == id {
			return true
		}
	}
	return false
}

// IsExcluded reports whether id was excluded.
func (b Bundle) IsExcluded(id string) bool {
	for _, ex := range b.Excluded {
		if ex.Item.ID == id {
			return true
		}
	}
	return false
}

// UsableIDs returns the ids of exposed and buried items in bundle order.
func (b Bundle) UsableIDs() []string {
	ids := make([]string, 0, len(b.Exposed)+len(b.Buried))
	for _, it := range b.Exposed {
		ids = append(ids, it.ID)
	}
	for _, it := range b.Buried {
		ids = append(ids, it.ID)
	}
	return ids
}

func (b *Bundle) include(it Item) {
	if it.hidden() {
		b.Buried = append(b.Buried, it.buried())
		return
	}
	b.Exposed = append(b.Exposed, it)
}
