package rules

import (
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/refdata"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Realtime Rule Engine
//
// Evaluates every active rule against a single transaction plus the
// caller-supplied sliding counters. Evaluation is pure: no I/O, no
// stored state between calls. Each evaluator decides its own confidence;
// the engine copies it verbatim and pins (rule ID, rule version) on
// every emitted pattern. A panicking evaluator is contained and skipped
// so one bad rule never blocks transaction monitoring.

// evalFunc is one typed evaluator. Returns nil when the rule does not fire.
type evalFunc func(rule *models.Rule, tx *models.Transaction, ctx *models.CustomerContext, e *Engine) *models.DetectedPattern

// Engine drives realtime per-transaction rule evaluation.
type Engine struct {
	store      *refdata.RuleStore
	countries  *refdata.CountryTable
	evaluators map[models.PatternType]evalFunc
}

// NewEngine wires the engine to its rule store and country table.
func NewEngine(store *refdata.RuleStore, countries *refdata.CountryTable) *Engine {
	e := &Engine{
		store:     store,
		countries: countries,
	}
	e.evaluators = map[models.PatternType]evalFunc{
		models.PatternStructuring:       evalStructuring,
		models.PatternVelocitySpike:     evalVelocitySpike,
		models.PatternRapidMovement:     evalRapidMovement,
		models.PatternGeographicAnomaly: evalGeographicAnomaly,
		models.PatternDormantActivation: evalDormantActivation,
		models.PatternAmountAnomaly:     evalAmountAnomaly,
	}
	return e
}

// Evaluate runs every active rule with a matching evaluator against the
// transaction. Batch-only pattern types (layering, round-tripping) have
// no realtime evaluator and are skipped here.
func (e *Engine) Evaluate(tx *models.Transaction, ctx *models.CustomerContext) []models.DetectedPattern {
	var out []models.DetectedPattern
	for _, rule := range e.store.ActiveRules(tx.Timestamp) {
		eval, ok := e.evaluators[rule.PatternType]
		if !ok {
			continue
		}
		if p := e.runOne(rule, eval, tx, ctx); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// runOne executes a single evaluator with panic containment.
func (e *Engine) runOne(rule *models.Rule, eval evalFunc, tx *models.Transaction, ctx *models.CustomerContext) (pattern *models.DetectedPattern) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RuleEngine] Rule %s v%d panicked on tx %s: %v", rule.Code, rule.Version, tx.ID, r)
			pattern = nil
		}
	}()

	pattern = eval(rule, tx, ctx, e)
	if pattern != nil {
		pattern.ID = uuid.New()
		pattern.PatternType = rule.PatternType
		pattern.Severity = rule.Severity
		pattern.Status = models.PatternDetected
		pattern.PrimaryEntityID = tx.CustomerID
		pattern.TransactionIDs = []uuid.UUID{tx.ID}
		pattern.RuleID = rule.ID
		pattern.RuleVersion = rule.Version
		pattern.DetectionDate = time.Now().UTC()
	}
	return pattern
}

func txAmount(tx *models.Transaction) float64 {
	return tx.Amount.Amount.InexactFloat64()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// evalStructuring fires when the amount sits just under the reporting
// threshold and the customer already made min_count-1 such transactions
// in the trailing day.
func evalStructuring(rule *models.Rule, tx *models.Transaction, ctx *models.CustomerContext, _ *Engine) *models.DetectedPattern {
	threshold := rule.Threshold("amount", 10000)
	minCount := int(rule.Param("min_count", 3))

	amount := txAmount(tx)
	if amount < 0.8*threshold || amount >= threshold {
		return nil
	}
	if ctx.RecentBelowThresholdCount < minCount-1 {
		return nil
	}

	return &models.DetectedPattern{
		Confidence: 0.75,
		Indicators: []string{"below_reporting_threshold", "repeated_sub_threshold_activity"},
		Structuring: &models.StructuringDetail{
			Threshold:   threshold,
			Count:       ctx.RecentBelowThresholdCount + 1,
			TotalAmount: amount,
			WindowHours: rule.Param("window_hours", 24),
		},
	}
}

// evalVelocitySpike fires when current velocity exceeds the customer's
// baseline by the configured multiplier. A zero baseline never fires:
// brand-new customers have no normal to deviate from.
func evalVelocitySpike(rule *models.Rule, _ *models.Transaction, ctx *models.CustomerContext, _ *Engine) *models.DetectedPattern {
	multiplier := rule.Param("multiplier", 3.0)
	if ctx.BaselineVelocity <= 0 {
		return nil
	}
	ratio := ctx.CurrentVelocity / ctx.BaselineVelocity
	if ratio <= multiplier {
		return nil
	}

	confidence := 0.6 + 0.05*(ratio-multiplier)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return &models.DetectedPattern{
		Confidence: confidence,
		Indicators: []string{"velocity_above_baseline"},
		Extra: map[string]string{
			"velocityRatio": formatFloat(ratio),
		},
	}
}

// evalRapidMovement fires on a debit leaving within window_hours of the
// last credit when the debit returns at least min_ratio of it.
func evalRapidMovement(rule *models.Rule, tx *models.Transaction, ctx *models.CustomerContext, _ *Engine) *models.DetectedPattern {
	if tx.Direction != models.DirectionDebit {
		return nil
	}
	window := rule.Param("window_hours", 24)
	minRatio := rule.Param("min_ratio", 0.9)
	minAmount := rule.Threshold("min_amount", 1000)

	credit := ctx.LastCreditAmount.Amount.InexactFloat64()
	debit := txAmount(tx)
	if credit < minAmount || debit < minAmount {
		return nil
	}
	if ctx.HoursSinceLastCredit < 0 || ctx.HoursSinceLastCredit > window {
		return nil
	}
	if debit/credit < minRatio {
		return nil
	}

	return &models.DetectedPattern{
		Confidence: 0.75,
		Indicators: []string{"funds_in_and_out", "short_holding_period"},
		RapidMove: &models.RapidMoveDetail{
			Account:      tx.SourceAccount,
			CreditAmount: credit,
			DebitAmount:  debit,
			GapHours:     ctx.HoursSinceLastCredit,
		},
	}
}

// evalGeographicAnomaly fires when the counterparty country is in the
// configured high-risk set.
func evalGeographicAnomaly(_ *models.Rule, tx *models.Transaction, _ *models.CustomerContext, e *Engine) *models.DetectedPattern {
	if tx.CountryCode == "" || !e.countries.IsHighRisk(tx.CountryCode) {
		return nil
	}
	return &models.DetectedPattern{
		Confidence: 0.6,
		Indicators: []string{"high_risk_jurisdiction"},
		Extra:      map[string]string{"country": tx.CountryCode},
	}
}

// evalDormantActivation fires on meaningful activity after a long quiet
// period.
func evalDormantActivation(rule *models.Rule, tx *models.Transaction, ctx *models.CustomerContext, _ *Engine) *models.DetectedPattern {
	dormantDays := rule.Param("dormant_days", 180)
	minAmount := rule.Threshold("min_amount", 1000)

	if ctx.DaysSinceLastActivity <= dormantDays || txAmount(tx) < minAmount {
		return nil
	}
	return &models.DetectedPattern{
		Confidence: 0.65,
		Indicators: []string{"dormant_account_activity"},
		Extra: map[string]string{
			"daysSinceLastActivity": formatFloat(ctx.DaysSinceLastActivity),
		},
	}
}

// evalAmountAnomaly fires on any single transaction at or over the
// reporting threshold.
func evalAmountAnomaly(rule *models.Rule, tx *models.Transaction, _ *models.CustomerContext, _ *Engine) *models.DetectedPattern {
	threshold := rule.Threshold("amount", 10000)
	if txAmount(tx) < threshold {
		return nil
	}
	indicators := []string{"large_amount"}
	if tx.IsCash {
		indicators = append(indicators, "cash_transaction")
	}
	return &models.DetectedPattern{
		Confidence: 0.7,
		Indicators: indicators,
	}
}
