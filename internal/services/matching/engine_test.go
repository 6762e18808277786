package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/services/advisory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdvisor struct {
	simFn    func(a, b string) (float64, error)
	decideFn func(mc advisory.Context) (advisory.Decision, error)
	simCalls int
	decCalls int
}

func (s *stubAdvisor) Similarity(ctx context.Context, a, b string) (float64, error) {
	s.simCalls++
	if s.simFn == nil {
		return 0, advisory.ErrDisabled
	}
	return s.simFn(a, b)
}

func (s *stubAdvisor) Decide(ctx context.Context, mc advisory.Context) (advisory.Decision, error) {
	s.decCalls++
	if s.decideFn == nil {
		return advisory.Decision{}, advisory.ErrDisabled
	}
	return s.decideFn(mc)
}

var base = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func fptr(f float64) *float64     { return &f }
func dptr(t time.Time) *time.Time { return &t }

func invoice(name string, net float64, issue *time.Time) models.Invoice {
	return models.Invoice{
		ID:           uuid.New(),
		ExternalRef:  "INV-" + name,
		CustomerName: name,
		IssueDate:    issue,
		Currency:     "PEN",
		NetExpected:  fptr(net),
	}
}

func movement(row int, desc string, amount float64, date *time.Time) models.BankMovement {
	return models.BankMovement{
		ID:              uuid.New(),
		RowIndex:        row,
		BankCode:        "BCP",
		TransactionDate: date,
		Description:     desc,
		Currency:        "PEN",
		Amount:          amount,
	}
}

func newTestEngine(adv advisory.Advisor) *Engine {
	return NewEngine(DefaultConfig(), adv, nil)
}

func TestMatchOneResultPerInvoiceInOrder(t *testing.T) {
	engine := newTestEngine(nil)

	invoices := []models.Invoice{
		invoice("alpha sa", 100, dptr(base)),
		invoice("beta sac", 200, dptr(base)),
		invoice("gamma eirl", 300, dptr(base)),
	}
	movements := []models.BankMovement{
		movement(0, "alpha sa", 100, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), invoices, movements)

	require.Len(t, results, 3)
	assert.Equal(t, "INV-alpha sa", results[0].InvoiceDoc)
	assert.Equal(t, "INV-beta sac", results[1].InvoiceDoc)
	assert.Equal(t, "INV-gamma eirl", results[2].InvoiceDoc)
}

func TestUnboundedWindowWhenInvoiceHasNoDates(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, nil)
	movements := []models.BankMovement{
		movement(0, "far away", 5000, dptr(base.AddDate(0, -6, 0))),
		movement(1, "acme trading sa", 1000, dptr(base)),
		movement(2, "also far", 5000, dptr(base.AddDate(0, 6, 0))),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, results, 1)
	// Every movement was evaluated: the candidate set is the whole ledger.
	assert.Len(t, details, 3)
	assert.Equal(t, CategoryMatch, results[0].Category)
}

func TestNoMovementsInWindow(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, dptr(base.AddDate(0, 0, 30))),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, results, 1)
	assert.Empty(t, details)
	assert.Nil(t, results[0].MovementID)
	assert.Equal(t, CategoryNoMatch, results[0].Category)
	assert.Equal(t, RationaleNoMovements, results[0].Rationale)
}

func TestWindowSlackWidensIssueDate(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	// 2 days outside the raw issue date but inside the 3-day slack.
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, dptr(base.AddDate(0, 0, 2))),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)
	require.NotNil(t, results[0].MovementID)
}

func TestExplicitWindowWinsOverIssueDate(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	inv.WindowStart = dptr(base.AddDate(0, 0, 20))
	inv.WindowEnd = dptr(base.AddDate(0, 0, 25))

	movements := []models.BankMovement{
		movement(0, "near issue date", 1000, dptr(base)),
		movement(1, "acme trading sa", 1000, dptr(base.AddDate(0, 0, 22))),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.Equal(t, movements[1].ID, details[0].MovementID)
	require.NotNil(t, results[0].MovementID)
	assert.Equal(t, movements[1].ID, *results[0].MovementID)
}

func TestAllMovementDatesMissingDegradesToAll(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, nil),
		movement(1, "someone else", 900, nil),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Len(t, details, 2)
	require.NotNil(t, results[0].MovementID)
	assert.Equal(t, movements[0].ID, *results[0].MovementID)
}

func TestDatelessMovementExcludedFromBoundedWindow(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, nil),
		movement(1, "acme trading sa", 1000, dptr(base)),
	}

	_, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.Equal(t, movements[1].ID, details[0].MovementID)
}

func TestDoubleToleranceRejection(t *testing.T) {
	engine := newTestEngine(nil)

	// tolerance 50: diff 120 > 100 is rejected outright.
	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1120, dptr(base)),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.True(t, details[0].Rejected)
	assert.Equal(t, CategoryNoMatch, results[0].Category)
	assert.Equal(t, RationaleIncompatible, results[0].Rationale)
	assert.Nil(t, results[0].MovementID)
}

func TestMatchRequiresTighterTolerance(t *testing.T) {
	engine := newTestEngine(nil)

	// diff 60 survives the 2x gate (100) but exceeds the MATCH bound (50):
	// a perfect name can never yield MATCH here.
	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1060, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.NotNil(t, results[0].MovementID)
	assert.NotEqual(t, CategoryMatch, results[0].Category)
	assert.Equal(t, CategoryUncertain, results[0].Category)
}

func TestConfidentMatch(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1010, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Equal(t, CategoryMatch, results[0].Category)
	assert.InDelta(t, 10, results[0].AmountDiff, 1e-9)
	assert.GreaterOrEqual(t, results[0].Similarity, 0.55)
}

func TestWeakNameCategory(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "zzzz 9999", 1000, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.NotNil(t, results[0].MovementID)
	assert.Equal(t, CategoryWeakName, results[0].Category)
}

func TestFlexibleTerminologyUpgradesWeakName(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "pago masivo 000123", 1000, dptr(base)),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.True(t, details[0].FlexibleTerms)
	assert.Less(t, results[0].Similarity, 0.35)
	assert.Equal(t, CategoryUncertain, results[0].Category)
}

func TestWinnerMinimizesCompositeScore(t *testing.T) {
	engine := newTestEngine(nil)

	// Net expected 1000, tolerance 50. A diff=60 survives the 2x gate,
	// B diff=10; equal names, so B's amount closeness decides.
	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1060, dptr(base)),
		movement(1, "acme trading sa", 1010, dptr(base)),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Len(t, details, 2)
	require.NotNil(t, results[0].MovementID)
	assert.Equal(t, movements[1].ID, *results[0].MovementID)
	assert.InDelta(t, 10, results[0].AmountDiff, 1e-9)
}

func TestTieBreakGoesToLowestRowIndex(t *testing.T) {
	engine := newTestEngine(nil)

	inv := invoice("acme trading sa", 1000, nil)
	first := movement(3, "acme trading sa", 1000, nil)
	second := movement(7, "acme trading sa", 1000, nil)

	// Input order reversed on purpose: the engine sorts by row index.
	results, _ := engine.Match(context.Background(), []models.Invoice{inv},
		[]models.BankMovement{second, first})

	require.NotNil(t, results[0].MovementID)
	assert.Equal(t, first.ID, *results[0].MovementID)
}

func TestNoUsableAmountRejectsEverything(t *testing.T) {
	engine := newTestEngine(nil)

	inv := models.Invoice{
		ID:           uuid.New(),
		ExternalRef:  "INV-X",
		CustomerName: "acme trading sa",
		IssueDate:    dptr(base),
	}
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, dptr(base)),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.True(t, details[0].Rejected)
	assert.Empty(t, details[0].AmountBasis)
	assert.Equal(t, CategoryNoMatch, results[0].Category)
	assert.Equal(t, RationaleIncompatible, results[0].Rationale)
}

func TestIdempotentWithAdvisoryDisabled(t *testing.T) {
	engine := newTestEngine(advisory.Noop{})

	invoices := []models.Invoice{
		invoice("acme trading sa", 1000, dptr(base)),
		invoice("otra empresa sac", 2500, nil),
	}
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1010, dptr(base)),
		movement(1, "pago masivo proveedores", 2500, dptr(base.AddDate(0, 0, 1))),
	}

	r1, d1 := engine.Match(context.Background(), invoices, movements)
	r2, d2 := engine.Match(context.Background(), invoices, movements)

	assert.Equal(t, r1, r2)
	assert.Equal(t, d1, d2)
}

func TestMovementNotConsumedAcrossInvoices(t *testing.T) {
	engine := newTestEngine(nil)

	// Two invoices with overlapping windows may both select the same
	// movement; bulk payments legitimately settle several invoices.
	invA := invoice("acme trading sa", 1000, dptr(base))
	invB := invoice("acme trading sa", 1000, dptr(base.AddDate(0, 0, 1)))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{invA, invB}, movements)

	require.Len(t, results, 2)
	require.NotNil(t, results[0].MovementID)
	require.NotNil(t, results[1].MovementID)
	assert.Equal(t, *results[0].MovementID, *results[1].MovementID)
}

func TestAdvisorySimilarityOnlyInAmbiguousBand(t *testing.T) {
	adv := &stubAdvisor{
		simFn: func(a, b string) (float64, error) { return 0.9, nil },
	}
	engine := newTestEngine(adv)

	// Near-identical names sit above the 0.80 band: no advisory call.
	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, dptr(base)),
	}
	engine.Match(context.Background(), []models.Invoice{inv}, movements)
	assert.Zero(t, adv.simCalls)

	// A partial overlap falls inside the band and triggers the booster.
	inv2 := invoice("acme", 1000, dptr(base))
	movements2 := []models.BankMovement{
		movement(0, "acme bank transfer", 1000, dptr(base)),
	}
	results, details := engine.Match(context.Background(), []models.Invoice{inv2}, movements2)

	assert.Equal(t, 1, adv.simCalls)
	require.Len(t, details, 1)
	require.NotNil(t, details[0].AdvisorySimilarity)
	assert.InDelta(t, 0.9, *details[0].AdvisorySimilarity, 1e-9)
	// Final similarity is the max of rule-based and advisory.
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-9)
}

func TestAdvisorySimilarityFailureKeepsRuleScore(t *testing.T) {
	adv := &stubAdvisor{
		simFn: func(a, b string) (float64, error) { return 0, errors.New("timeout") },
	}
	engine := newTestEngine(adv)

	inv := invoice("acme", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme bank transfer", 1000, dptr(base)),
	}

	results, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.Nil(t, details[0].AdvisorySimilarity)
	assert.InDelta(t, details[0].RuleSimilarity, results[0].Similarity, 1e-9)
}

func TestAdvisoryDecisionOverridesCategory(t *testing.T) {
	adv := &stubAdvisor{
		decideFn: func(mc advisory.Context) (advisory.Decision, error) {
			return advisory.Decision{Category: CategoryMatch, Rationale: "known factoring intermediary"}, nil
		},
	}
	engine := newTestEngine(adv)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "pago masivo 000123", 1000, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Equal(t, 1, adv.decCalls)
	assert.Equal(t, CategoryMatch, results[0].Category)
	assert.Equal(t, "known factoring intermediary", results[0].Rationale)
}

func TestAdvisoryDecisionNotAskedForConfidentMatch(t *testing.T) {
	adv := &stubAdvisor{
		decideFn: func(mc advisory.Context) (advisory.Decision, error) {
			return advisory.Decision{Category: CategoryNoMatch}, nil
		},
	}
	engine := newTestEngine(adv)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme trading sa", 1000, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Zero(t, adv.decCalls)
	assert.Equal(t, CategoryMatch, results[0].Category)
}

func TestAdvisoryDecisionFailureKeepsRuleCategory(t *testing.T) {
	adv := &stubAdvisor{
		decideFn: func(mc advisory.Context) (advisory.Decision, error) {
			return advisory.Decision{}, errors.New("service unavailable")
		},
	}
	engine := newTestEngine(adv)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "pago masivo 000123", 1000, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Equal(t, CategoryUncertain, results[0].Category)
	assert.Empty(t, results[0].Rationale)
}

func TestAdvisoryInvalidCategoryTreatedAsFailure(t *testing.T) {
	adv := &stubAdvisor{
		decideFn: func(mc advisory.Context) (advisory.Decision, error) {
			return advisory.Decision{Category: "MAYBE", Rationale: "nonsense"}, nil
		},
	}
	engine := newTestEngine(adv)

	inv := invoice("acme trading sa", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "pago masivo 000123", 1000, dptr(base)),
	}

	results, _ := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	assert.Equal(t, CategoryUncertain, results[0].Category)
	assert.Empty(t, results[0].Rationale)
}

func TestBestAmountReference(t *testing.T) {
	inv := models.Invoice{
		Subtotal:    fptr(900),
		Total:       fptr(1062),
		NetExpected: fptr(1020),
	}

	// Settled 1015: net expected (diff 5) beats total (47) and subtotal (115).
	basis, diff := bestAmountReference(&inv, 1015)
	assert.Equal(t, BasisNetExpected, basis)
	assert.InDelta(t, 5, diff, 1e-9)

	// Exact tie resolves to the earlier-declared priority.
	tie := models.Invoice{NetExpected: fptr(1000), Total: fptr(1000)}
	basis, diff = bestAmountReference(&tie, 1000)
	assert.Equal(t, BasisNetExpected, basis)
	assert.Zero(t, diff)

	// No usable amount at all.
	basis, _ = bestAmountReference(&models.Invoice{TaxAmount: fptr(180)}, 1000)
	assert.Empty(t, basis)
}

func TestRejectedCandidateSkipsAdvisory(t *testing.T) {
	adv := &stubAdvisor{
		simFn: func(a, b string) (float64, error) { return 0.9, nil },
	}
	engine := newTestEngine(adv)

	inv := invoice("acme", 1000, dptr(base))
	movements := []models.BankMovement{
		movement(0, "acme bank transfer", 2000, dptr(base)),
	}

	_, details := engine.Match(context.Background(), []models.Invoice{inv}, movements)

	require.Len(t, details, 1)
	assert.True(t, details[0].Rejected)
	assert.Zero(t, adv.simCalls)
}
