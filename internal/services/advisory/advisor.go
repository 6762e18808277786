// Package advisory provides the optional external reasoning layer used to
// break ties in ambiguous similarity bands. It is best-effort only: callers
// must treat any error as "no change" and keep their rule-based outcome.
package advisory

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the Noop advisor from every method.
var ErrDisabled = errors.New("advisory layer disabled")

// Decision is the advisory verdict for one invoice/movement pairing.
type Decision struct {
	Category  string `json:"decision"`
	Rationale string `json:"rationale"`
}

// Context carries everything the decision function needs about a candidate.
type Context struct {
	InvoiceDoc     string  `json:"invoice_doc"`
	CustomerName   string  `json:"customer_name"`
	TaxID          string  `json:"tax_id"`
	Description    string  `json:"description"`
	InvoiceAmount  float64 `json:"invoice_amount"`
	MovementAmount float64 `json:"movement_amount"`
	AmountDiff     float64 `json:"amount_diff"`
	Similarity     float64 `json:"similarity"`
	FlexibleTerms  bool    `json:"flexible_terms"`
}

// Advisor is the capability interface consumed by the matching engine.
type Advisor interface {
	// Similarity returns a second similarity estimate in [0,1] for the two
	// texts.
	Similarity(ctx context.Context, a, b string) (float64, error)
	// Decide returns a category override plus a rationale for the pairing.
	Decide(ctx context.Context, mc Context) (Decision, error)
}

// Noop is the always-disabled advisor used in tests and when no API key is
// configured.
type Noop struct{}

func (Noop) Similarity(ctx context.Context, a, b string) (float64, error) {
	return 0, ErrDisabled
}

func (Noop) Decide(ctx context.Context, mc Context) (Decision, error) {
	return Decision{}, ErrDisabled
}
