package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/internal/lifecycle"
	"github.com/rawblock/aml-engine/internal/patterns"
	"github.com/rawblock/aml-engine/internal/refdata"
	"github.com/rawblock/aml-engine/internal/resolution"
	"github.com/rawblock/aml-engine/internal/risk"
	"github.com/rawblock/aml-engine/internal/rules"
	"github.com/rawblock/aml-engine/internal/screening"
	"github.com/rawblock/aml-engine/internal/workflow"
	"github.com/rawblock/aml-engine/pkg/models"
)

// AML Core
//
// Composition root binding every subsystem into one value. There are no
// process-wide singletons: handlers receive an *AmlCore and tests build
// independent instances. The core also owns the cross-subsystem glue:
//   - detected patterns materialize into alerts, deduplicated per
//     (entity, pattern type, calendar day)
//   - screening hits at or above the auto-escalation score flip the
//     subject's sanctions flag and raise a critical alert
//   - critical alerts and SAR filings flow to the notification sink
//   - state transitions are recorded in the audit log

// Config tunes the core at construction time.
type Config struct {
	BatchWorkers int // worker pool size for batch jobs; <=0 means default
}

// AmlCore owns the subsystems and the glue between them.
type AmlCore struct {
	Countries *refdata.CountryTable
	Lists     *refdata.ListStore
	Rules     *refdata.RuleStore

	Screening   *screening.Engine
	BatchScreen *screening.Runner
	Resolver    *resolution.Resolver
	RuleEngine  *rules.Engine
	Detector    *patterns.Detector
	Analyzer    *patterns.Analyzer
	Scorer      *risk.Scorer
	Profiles    *risk.ProfileStore
	Alerts      *lifecycle.AlertManager
	Cases       *lifecycle.CaseManager
	SARs        *lifecycle.SARManager
	Workflows   *workflow.Orchestrator

	Audit    *core.AuditLog
	Notifier *core.Notifier

	dedupeMu sync.Mutex
	alerted  map[string]uuid.UUID // entity|pattern|day -> alert ID
}

// New builds a fully wired core.
func New(cfg Config) (*AmlCore, error) {
	countries := refdata.NewCountryTable()
	lists := refdata.NewListStore()
	ruleStore := refdata.NewRuleStore()

	scorer, err := risk.NewScorer(risk.DefaultWeights, countries, risk.DefaultCatalog())
	if err != nil {
		return nil, fmt.Errorf("risk scorer: %w", err)
	}

	c := &AmlCore{
		Countries: countries,
		Lists:     lists,
		Rules:     ruleStore,
		Scorer:    scorer,
		Profiles:  risk.NewProfileStore(),
		Cases:     lifecycle.NewCaseManager(),
		SARs:      lifecycle.NewSARManager(),
		Workflows: workflow.NewOrchestrator(),
		Audit:     core.NewAuditLog(),
		Notifier:  core.NewNotifier(nil),
		alerted:   make(map[string]uuid.UUID),
	}

	c.Alerts = lifecycle.NewAlertManager(func(alert *models.Alert) {
		c.Notifier.Emit(core.Event{
			Severity:    alert.Severity,
			EventType:   "critical_alert",
			Title:       alert.Title,
			Description: alert.Description,
			EntityID:    alert.CustomerID,
			Reference:   alert.Number,
		})
	})

	c.Screening = screening.NewEngine()
	c.BatchScreen = screening.NewRunner(c.Screening, cfg.BatchWorkers)
	c.Resolver = resolution.NewResolver(func(actor, action, target, detail string) {
		c.Audit.Record(actor, action, target, "", detail)
	})
	c.RuleEngine = rules.NewEngine(ruleStore, countries)
	c.Detector = patterns.NewDetector(ruleStore)
	c.Analyzer = patterns.NewAnalyzer(c.Detector, cfg.BatchWorkers)

	log.Printf("[Core] Initialized with %d active rules", len(ruleStore.ActiveRules(time.Now().UTC())))
	return c, nil
}

// MonitorTransaction runs the realtime rule engine over one transaction
// and materializes every detected pattern into an alert.
func (c *AmlCore) MonitorTransaction(tx *models.Transaction, ctx *models.CustomerContext) []models.DetectedPattern {
	detected := c.RuleEngine.Evaluate(tx, ctx)
	for i := range detected {
		c.openAlert(&detected[i])
	}
	return detected
}

// RunBatchAnalysis schedules the batch pattern detectors over a
// transaction set. Detected patterns raise alerts through the same
// deduplicated path as realtime detection.
func (c *AmlCore) RunBatchAnalysis(ctx context.Context, name string, txs []models.Transaction) *patterns.AnalysisJob {
	return c.Analyzer.Run(ctx, name, txs, func(p models.DetectedPattern) {
		c.openAlert(&p)
	})
}

// openAlert creates an alert for a pattern unless one already exists for
// the same (entity, pattern type, calendar day).
func (c *AmlCore) openAlert(p *models.DetectedPattern) *models.Alert {
	key := fmt.Sprintf("%s|%s|%s", p.PrimaryEntityID, p.PatternType, p.DetectionDate.UTC().Format("20060102"))

	c.dedupeMu.Lock()
	if existing, ok := c.alerted[key]; ok {
		c.dedupeMu.Unlock()
		if alert, err := c.Alerts.Get(existing); err == nil {
			return alert
		}
		return nil
	}
	// Reserve the key before the (logging) create so a concurrent
	// detection of the same pattern cannot double-alert.
	c.alerted[key] = uuid.Nil
	c.dedupeMu.Unlock()

	alert, err := c.Alerts.Create(lifecycle.CreateAlert{
		Severity:    p.Severity,
		Title:       fmt.Sprintf("%s detected", p.PatternType),
		Description: fmt.Sprintf("Pattern %s at confidence %.2f", p.PatternType, p.Confidence),
		CustomerID:  p.PrimaryEntityID,
		PatternIDs:  []uuid.UUID{p.ID},
		PatternType: p.PatternType,
		RiskScore:   int(p.Confidence * 100),
	})
	if err != nil {
		log.Printf("[Core] Alert creation for pattern %s failed: %v", p.ID, err)
		return nil
	}

	c.dedupeMu.Lock()
	c.alerted[key] = alert.ID
	c.dedupeMu.Unlock()
	return alert
}

// Screen evaluates one subject against the requested lists (all lists
// when the request names none) and applies the escalation policy to the
// outcome.
func (c *AmlCore) Screen(req models.ScreeningRequest) models.ScreeningResult {
	lists := c.Lists.Snapshot(req.ListIDs)
	result := c.Screening.Screen(req, lists)
	c.handleScreeningResult(result)
	return result
}

// RunBatchScreen schedules screening across N subjects on the shared
// worker pool. Every hit goes through the same escalation policy as a
// single screen call.
func (c *AmlCore) RunBatchScreen(ctx context.Context, name string, subjects []models.ScreeningRequest) *screening.BatchJob {
	lists := c.Lists.Snapshot(nil)
	return c.BatchScreen.Run(ctx, name, subjects, lists, func(result models.ScreeningResult) {
		c.handleScreeningResult(result)
	})
}

// handleScreeningResult applies the escalation policy: a best score at or
// above the auto-escalation threshold flips the subject's sanctions flag,
// raises a critical alert and emits a sanctions_hit event; weaker matches
// raise a high alert for review.
func (c *AmlCore) handleScreeningResult(result models.ScreeningResult) {
	if len(result.Matches) == 0 {
		return
	}
	best := result.BestScore()
	c.Audit.Record(result.SubjectName, "screening_match", "subject:"+result.SubjectID.String(),
		"", fmt.Sprintf("best score %.2f across %d matches", best, len(result.Matches)))

	severity := models.SeverityHigh
	if best >= screening.AutoEscalateScore {
		severity = models.SeverityCritical
		if _, ok := c.Profiles.MarkSanctionsMatch(result.SubjectID); !ok {
			log.Printf("[Core] Screening hit on subject %s with no risk profile", result.SubjectID)
		}
		c.Notifier.Emit(core.Event{
			Severity:  models.SeverityCritical,
			EventType: "sanctions_hit",
			Title:     fmt.Sprintf("Sanctions screening hit: %s", result.SubjectName),
			EntityID:  result.SubjectID,
		})
	}

	if _, err := c.Alerts.Create(lifecycle.CreateAlert{
		Severity:    severity,
		Title:       fmt.Sprintf("Screening match: %s", result.SubjectName),
		Description: fmt.Sprintf("Best match score %.2f against %d list(s)", best, result.ListsChecked),
		CustomerID:  result.SubjectID,
		RiskScore:   int(best * 100),
	}); err != nil {
		log.Printf("[Core] Screening alert for %s failed: %v", result.SubjectID, err)
	}
}

// AssessCustomerRisk recomputes a customer's risk and applies the
// assessment to the stored profile.
func (c *AmlCore) AssessCustomerRisk(customerID uuid.UUID, trigger string) (*models.RiskAssessment, error) {
	profile, ok := c.Profiles.Get(customerID)
	if !ok {
		return nil, core.NotFound("risk profile for customer %s not found", customerID)
	}

	assessment := c.Scorer.Assess(profile, trigger)
	if _, err := c.Profiles.ApplyAssessment(customerID, assessment); err != nil {
		return nil, err
	}
	c.Audit.Record("system", "risk_assessment", "customer:"+customerID.String(),
		"", fmt.Sprintf("score %.1f (%s), trigger %s", assessment.OverallScore, assessment.Level, trigger))
	return &assessment, nil
}

// MergeEntities merges all listed entities into the surviving one, in the
// given order. Each pairwise merge is linearized by the resolver.
func (c *AmlCore) MergeEntities(ids []uuid.UUID, surviving uuid.UUID, actor string) (*models.MasterEntity, error) {
	var out *models.MasterEntity
	for _, id := range ids {
		if id == surviving {
			continue
		}
		merged, err := c.Resolver.Merge(surviving, id, actor, 1.0)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	if out == nil {
		entity, ok := c.Resolver.GetEntity(surviving)
		if !ok {
			return nil, core.NotFound("entity %s not found", surviving)
		}
		out = entity
	}
	return out, nil
}

// FileSAR files an approved SAR and fans the filing out to the
// notification sink and any linked alerts.
func (c *AmlCore) FileSAR(id uuid.UUID, method string, alertIDs []uuid.UUID) (*models.SAR, error) {
	sar, err := c.SARs.File(id, method)
	if err != nil {
		return nil, err
	}

	for _, alertID := range alertIDs {
		if _, err := c.Alerts.MarkSARFiled(alertID); err != nil {
			log.Printf("[Core] Could not mark alert %s sar_filed: %v", alertID, err)
		}
	}
	c.Audit.Record(sar.PreparedBy, "sar_filed", "sar:"+sar.Number, "", method)
	c.Notifier.Emit(core.Event{
		Severity:  models.SeverityHigh,
		EventType: "sar_filed",
		Title:     fmt.Sprintf("SAR %s filed", sar.Number),
		Reference: sar.Number,
	})
	return sar, nil
}
