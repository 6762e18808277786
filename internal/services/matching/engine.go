// Package matching pairs normalized invoices with the bank movement most
// likely to be their payment. The engine is pure: it reads nothing and writes
// nothing, it only turns (invoices, movements) into results plus an audit
// trail of every candidate it looked at.
package matching

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/services/advisory"
)

// Match categories, from confident to none.
const (
	CategoryMatch     = "MATCH"
	CategoryUncertain = "MATCH_DUDOSO"
	CategoryWeakName  = "MATCH_MONTOS_OK_NOMBRE_BAJO"
	CategoryNoMatch   = "NO_MATCH"
)

// Fixed rationale strings for the two NO_MATCH end states.
const (
	RationaleNoMovements  = "no movements in window"
	RationaleIncompatible = "incompatible movement"
)

// Names of the invoice amount fields used as comparison references, in
// declaration priority order.
const (
	BasisNetExpected = "net_expected"
	BasisTotal       = "total"
	BasisSubtotal    = "subtotal"
)

// ValidCategory reports whether s is one of the known match categories. An
// advisory decision outside this set is treated as a malformed response.
func ValidCategory(s string) bool {
	switch s {
	case CategoryMatch, CategoryUncertain, CategoryWeakName, CategoryNoMatch:
		return true
	}
	return false
}

type Engine struct {
	cfg     Config
	advisor advisory.Advisor
	logger  *slog.Logger
}

// NewEngine builds an engine with an immutable config. A nil advisor disables
// the advisory layer.
func NewEngine(cfg Config, advisor advisory.Advisor, logger *slog.Logger) *Engine {
	if advisor == nil {
		advisor = advisory.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, advisor: advisor, logger: logger}
}

// Match produces exactly one MatchResult per invoice, in input order, plus
// one MatchDetail per evaluated candidate. Malformed rows degrade to defaults
// or NO_MATCH; nothing here ever aborts the run.
func (e *Engine) Match(ctx context.Context, invoices []models.Invoice, movements []models.BankMovement) ([]models.MatchResult, []models.MatchDetail) {
	// Stable candidate order so equal scores always resolve the same way.
	sorted := make([]models.BankMovement, len(movements))
	copy(sorted, movements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RowIndex < sorted[j].RowIndex
	})

	datesKnown := false
	for i := range sorted {
		if sorted[i].TransactionDate != nil {
			datesKnown = true
			break
		}
	}
	if !datesKnown && len(sorted) > 0 {
		e.logger.Warn("movements carry no transaction dates, window filtering disabled",
			"movements", len(sorted))
	}

	results := make([]models.MatchResult, 0, len(invoices))
	var details []models.MatchDetail

	for i := range invoices {
		res, det := e.matchInvoice(ctx, &invoices[i], sorted, datesKnown)
		results = append(results, res)
		details = append(details, det...)
	}

	return results, details
}

type candidate struct {
	movement    *models.BankMovement
	basis       string
	diff        float64
	ruleSim     float64
	advisorySim *float64
	finalSim    float64
	flex        bool
	score       float64
	rejected    bool
}

func (e *Engine) matchInvoice(ctx context.Context, inv *models.Invoice, movements []models.BankMovement, datesKnown bool) (models.MatchResult, []models.MatchDetail) {
	start, end := e.window(inv)

	// When no movement carries a date at all, window filtering degrades to
	// "consider everything" rather than producing empty candidate sets.
	if !datesKnown {
		start, end = nil, nil
	}

	var pool []*models.BankMovement
	for i := range movements {
		if inWindow(movements[i].TransactionDate, start, end) {
			pool = append(pool, &movements[i])
		}
	}

	if len(pool) == 0 {
		return e.noMatch(inv, RationaleNoMovements), nil
	}

	candidates := make([]candidate, 0, len(pool))
	for _, mov := range pool {
		candidates = append(candidates, e.score(ctx, inv, mov))
	}

	details := make([]models.MatchDetail, 0, len(candidates))
	for i := range candidates {
		details = append(details, e.detail(inv, &candidates[i], start, end))
	}

	var winner *candidate
	for i := range candidates {
		if candidates[i].rejected {
			continue
		}
		if winner == nil || candidates[i].score > winner.score {
			winner = &candidates[i]
		}
	}
	if winner == nil {
		return e.noMatch(inv, RationaleIncompatible), details
	}

	category := e.categorize(winner)
	rationale := ""

	if category != CategoryMatch {
		dec, err := e.advisor.Decide(ctx, advisory.Context{
			InvoiceDoc:     inv.DocumentID(),
			CustomerName:   inv.CustomerName,
			TaxID:          inv.TaxID,
			Description:    winner.movement.Description,
			InvoiceAmount:  referenceAmount(inv, winner.basis),
			MovementAmount: winner.movement.Settled(),
			AmountDiff:     winner.diff,
			Similarity:     winner.finalSim,
			FlexibleTerms:  winner.flex,
		})
		if err == nil && ValidCategory(dec.Category) {
			category = dec.Category
			rationale = dec.Rationale
		}
		// Any advisory failure keeps the rule-based category silently.
	}

	movID := winner.movement.ID
	amount := winner.movement.Amount
	settled := winner.movement.Settled()

	breakdown := map[string]interface{}{
		"amount_basis":    winner.basis,
		"amount_diff":     winner.diff,
		"rule_similarity": winner.ruleSim,
		"similarity":      winner.finalSim,
		"flexible_terms":  winner.flex,
		"score":           winner.score,
		"candidate_count": len(pool),
		"decision":        category,
	}
	if winner.advisorySim != nil {
		breakdown["advisory_similarity"] = *winner.advisorySim
	}
	breakdownJSON, _ := json.Marshal(breakdown)

	return models.MatchResult{
		InvoiceDoc:      inv.DocumentID(),
		CustomerName:    inv.CustomerName,
		Subtotal:        inv.Subtotal,
		TaxAmount:       inv.TaxAmount,
		Total:           inv.Total,
		Withholding:     inv.Withholding,
		NetExpected:     inv.NetExpected,
		MovementID:      &movID,
		MovementAmount:  &amount,
		MovementSettled: &settled,
		AmountDiff:      winner.diff,
		Similarity:      winner.finalSim,
		Category:        category,
		Rationale:       rationale,
		Breakdown:       breakdownJSON,
	}, details
}

// window returns the candidate date window for an invoice. Explicit bounds
// win, widened by the configured slack; otherwise the issue date anchors a
// symmetric window; with no date information the window is unbounded.
func (e *Engine) window(inv *models.Invoice) (start, end *time.Time) {
	slack := time.Duration(e.cfg.WindowSlackDays) * 24 * time.Hour

	if inv.WindowStart != nil || inv.WindowEnd != nil {
		if inv.WindowStart != nil {
			s := inv.WindowStart.Add(-slack)
			start = &s
		}
		if inv.WindowEnd != nil {
			en := inv.WindowEnd.Add(slack)
			end = &en
		}
		return start, end
	}

	if inv.IssueDate != nil {
		s := inv.IssueDate.Add(-slack)
		en := inv.IssueDate.Add(slack)
		return &s, &en
	}

	return nil, nil
}

func inWindow(d, start, end *time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	if d == nil {
		return false
	}
	if start != nil && d.Before(*start) {
		return false
	}
	if end != nil && d.After(*end) {
		return false
	}
	return true
}

func (e *Engine) score(ctx context.Context, inv *models.Invoice, mov *models.BankMovement) candidate {
	c := candidate{movement: mov}

	c.basis, c.diff = bestAmountReference(inv, mov.Settled())
	if c.basis == "" || c.diff > 2*e.cfg.AmountTolerance {
		c.rejected = true
	}

	c.ruleSim = nameSimilarity(inv.CustomerName, mov.Description)
	c.finalSim = c.ruleSim
	c.flex = hasFlexibleTerms(mov.Description)

	if c.rejected {
		return c
	}

	if c.ruleSim > e.cfg.AdvisoryBandLow && c.ruleSim < e.cfg.AdvisoryBandHigh {
		if adv, err := e.advisor.Similarity(ctx, inv.CustomerName, mov.Description); err == nil {
			c.advisorySim = &adv
			if adv > c.finalSim {
				c.finalSim = adv
			}
		}
	}

	amountCloseness := 1 - c.diff/(2*e.cfg.AmountTolerance)
	c.score = e.cfg.AmountWeight*amountCloseness + e.cfg.NameWeight*c.finalSim
	if c.flex {
		c.score += e.cfg.FlexBonus
	}
	return c
}

// bestAmountReference picks the invoice amount field closest to the settled
// movement amount, in priority order net expected, total, subtotal. A strict
// comparison keeps the earlier field on an exact tie. An empty basis means the
// invoice has no usable amount.
func bestAmountReference(inv *models.Invoice, settled float64) (string, float64) {
	refs := []struct {
		name  string
		value *float64
	}{
		{BasisNetExpected, inv.NetExpected},
		{BasisTotal, inv.Total},
		{BasisSubtotal, inv.Subtotal},
	}

	basis := ""
	best := 0.0
	for _, ref := range refs {
		if ref.value == nil {
			continue
		}
		diff := settled - *ref.value
		if diff < 0 {
			diff = -diff
		}
		if basis == "" || diff < best {
			basis = ref.name
			best = diff
		}
	}
	return basis, best
}

func referenceAmount(inv *models.Invoice, basis string) float64 {
	switch basis {
	case BasisNetExpected:
		if inv.NetExpected != nil {
			return *inv.NetExpected
		}
	case BasisTotal:
		if inv.Total != nil {
			return *inv.Total
		}
	case BasisSubtotal:
		if inv.Subtotal != nil {
			return *inv.Subtotal
		}
	}
	return 0
}

func (e *Engine) categorize(c *candidate) string {
	switch {
	case c.finalSim >= e.cfg.MatchSimilarity && c.diff <= e.cfg.AmountTolerance:
		return CategoryMatch
	case c.finalSim >= e.cfg.UncertainSimilarity || c.flex:
		return CategoryUncertain
	default:
		return CategoryWeakName
	}
}

func (e *Engine) noMatch(inv *models.Invoice, rationale string) models.MatchResult {
	return models.MatchResult{
		InvoiceDoc:   inv.DocumentID(),
		CustomerName: inv.CustomerName,
		Subtotal:     inv.Subtotal,
		TaxAmount:    inv.TaxAmount,
		Total:        inv.Total,
		Withholding:  inv.Withholding,
		NetExpected:  inv.NetExpected,
		Category:     CategoryNoMatch,
		Rationale:    rationale,
	}
}

func (e *Engine) detail(inv *models.Invoice, c *candidate, start, end *time.Time) models.MatchDetail {
	return models.MatchDetail{
		InvoiceDoc:         inv.DocumentID(),
		CustomerName:       inv.CustomerName,
		TaxID:              inv.TaxID,
		MovementID:         c.movement.ID,
		BankCode:           c.movement.BankCode,
		MovementDate:       c.movement.TransactionDate,
		Description:        c.movement.Description,
		Reference:          c.movement.Reference,
		Currency:           c.movement.Currency,
		MovementAmount:     c.movement.Amount,
		MovementSettled:    c.movement.Settled(),
		AmountBasis:        c.basis,
		AmountDiff:         c.diff,
		RuleSimilarity:     c.ruleSim,
		AdvisorySimilarity: c.advisorySim,
		FlexibleTerms:      c.flex,
		WindowStart:        start,
		WindowEnd:          end,
		Score:              c.score,
		Rejected:           c.rejected,
	}
}
