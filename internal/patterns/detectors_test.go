package patterns

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/refdata"
	"github.com/rawblock/aml-engine/pkg/models"
)

func newDetector() *Detector {
	return NewDetector(refdata.NewRuleStore())
}

func txAt(t time.Time, amount float64, direction models.TransactionDirection, source, target string) models.Transaction {
	return models.Transaction{
		ID:            uuid.New(),
		Amount:        models.NewMoney(amount, "USD"),
		Direction:     direction,
		SourceAccount: source,
		TargetAccount: target,
		Timestamp:     t,
	}
}

func TestDetectStructuring_FiveDepositsSameDay(t *testing.T) {
	// Five $9,500 cash deposits on one day: just under the $10,000
	// threshold, identical amounts, total well past 1.5x.
	customer := uuid.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var txs []models.Transaction
	for i := 0; i < 5; i++ {
		tx := txAt(base.Add(time.Duration(i)*time.Hour), 9500, models.DirectionCredit, "ACC-C1", "")
		tx.IsCash = true
		tx.Channel = "cash"
		tx.CustomerID = customer
		txs = append(txs, tx)
	}

	patterns := newDetector().DetectStructuring(txs)
	if len(patterns) != 1 {
		t.Fatalf("Expected 1 structuring pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Confidence < 0.85 {
		t.Errorf("Five identical sub-threshold deposits must score >= 0.85, got %v", p.Confidence)
	}
	want := map[string]bool{"multiple_below_threshold": true, "total_exceeds_threshold": true, "similar_amounts": true}
	for _, ind := range p.Indicators {
		delete(want, ind)
	}
	if len(want) != 0 {
		t.Errorf("Missing indicators: %v (got %v)", want, p.Indicators)
	}
	if p.PrimaryEntityID != customer {
		t.Error("Pattern must name the depositing customer")
	}
	if len(p.TransactionIDs) != 5 {
		t.Errorf("Expected all 5 deposits referenced, got %d", len(p.TransactionIDs))
	}
	if p.Structuring == nil || p.Structuring.TotalAmount != 47500 {
		t.Errorf("Expected total 47500 in detail, got %+v", p.Structuring)
	}
}

func TestDetectStructuring_RequiresCashAndWindow(t *testing.T) {
	customer := uuid.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// Non-cash deposits never count.
	var wires []models.Transaction
	for i := 0; i < 5; i++ {
		tx := txAt(base.Add(time.Duration(i)*time.Hour), 9500, models.DirectionCredit, "ACC-C1", "")
		tx.CustomerID = customer
		wires = append(wires, tx)
	}
	if got := newDetector().DetectStructuring(wires); len(got) != 0 {
		t.Errorf("Non-cash deposits must not structure, got %d patterns", len(got))
	}

	// Deposits spread over a week never share a 24h window.
	var spread []models.Transaction
	for i := 0; i < 3; i++ {
		tx := txAt(base.Add(time.Duration(i*72)*time.Hour), 9500, models.DirectionCredit, "ACC-C1", "")
		tx.IsCash = true
		tx.CustomerID = customer
		spread = append(spread, tx)
	}
	if got := newDetector().DetectStructuring(spread); len(got) != 0 {
		t.Errorf("Deposits 3 days apart must not structure, got %d patterns", len(got))
	}
}

func TestDetectLayering_ChainThroughIntermediaries(t *testing.T) {
	// A -> B -> C -> D: one simple path of 3 hops.
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		txAt(base, 50000, models.DirectionTransfer, "ACC-A", "ACC-B"),
		txAt(base.Add(time.Hour), 49000, models.DirectionTransfer, "ACC-B", "ACC-C"),
		txAt(base.Add(2*time.Hour), 48000, models.DirectionTransfer, "ACC-C", "ACC-D"),
	}

	patterns := newDetector().DetectLayering(txs)
	if len(patterns) != 1 {
		t.Fatalf("Expected 1 layering pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Confidence != 0.6 {
		t.Errorf("A 3-hop chain scores 0.6, got %v", p.Confidence)
	}
	if p.Layering == nil {
		t.Fatal("Layering detail missing")
	}
	if p.Layering.LayerCount != 3 {
		t.Errorf("Expected 3 layers, got %d", p.Layering.LayerCount)
	}
	if len(p.Layering.IntermediateEntities) != 2 {
		t.Errorf("Expected intermediaries B and C, got %v", p.Layering.IntermediateEntities)
	}
	if p.Layering.SourceAccount != "ACC-A" || p.Layering.DestinationAccount != "ACC-D" {
		t.Errorf("Wrong endpoints: %s -> %s", p.Layering.SourceAccount, p.Layering.DestinationAccount)
	}
}

func TestDetectLayering_ConfidenceGrowsWithDepth(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	accounts := []string{"ACC-A", "ACC-B", "ACC-C", "ACC-D", "ACC-E", "ACC-F"}
	var txs []models.Transaction
	for i := 0; i < len(accounts)-1; i++ {
		txs = append(txs, txAt(base.Add(time.Duration(i)*time.Hour), 10000, models.DirectionTransfer, accounts[i], accounts[i+1]))
	}

	patterns := newDetector().DetectLayering(txs)
	// 5-hop line yields sub-chains of length 3, 4 and 5 from multiple starts.
	best := 0.0
	for _, p := range patterns {
		if p.Confidence > best {
			best = p.Confidence
		}
	}
	if best != 0.8 {
		t.Errorf("The full 5-hop chain scores 0.6 + 0.1*2 = 0.8, got %v", best)
	}
}

func TestDetectLayering_TwoHopsIgnored(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		txAt(base, 50000, models.DirectionTransfer, "ACC-A", "ACC-B"),
		txAt(base.Add(time.Hour), 49000, models.DirectionTransfer, "ACC-B", "ACC-C"),
	}
	if got := newDetector().DetectLayering(txs); len(got) != 0 {
		t.Errorf("2-hop paths are below min_chain, got %d patterns", len(got))
	}
}

func TestDetectRoundTripping_SharedCounterparty(t *testing.T) {
	customer := uuid.New()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	out := txAt(base, 100000, models.DirectionDebit, "ACC-A", "")
	out.CounterpartyID = "CP-OFFSHORE"
	out.CustomerID = customer
	back := txAt(base.Add(48*time.Hour), 85000, models.DirectionCredit, "ACC-A", "")
	back.CounterpartyID = "CP-OFFSHORE"
	back.CustomerID = customer

	patterns := newDetector().DetectRoundTripping([]models.Transaction{out, back})
	if len(patterns) != 1 {
		t.Fatalf("Expected 1 round-tripping pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Confidence != 0.8 {
		t.Errorf("Round-tripping confidence is fixed at 0.8, got %v", p.Confidence)
	}
	if p.RoundTrip == nil || p.RoundTrip.ReturnRatio != 0.85 {
		t.Errorf("Expected return ratio 0.85, got %+v", p.RoundTrip)
	}

	// 70% returned is under the 0.8 bar.
	back.Amount = models.NewMoney(70000, "USD")
	if got := newDetector().DetectRoundTripping([]models.Transaction{out, back}); len(got) != 0 {
		t.Errorf("70%% return must not fire, got %d patterns", len(got))
	}
}

func TestDetectRoundTripping_MultiHopCycle(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		txAt(base, 50000, models.DirectionTransfer, "ACC-A", "ACC-B"),
		txAt(base.Add(time.Hour), 49000, models.DirectionTransfer, "ACC-B", "ACC-C"),
		txAt(base.Add(2*time.Hour), 48000, models.DirectionTransfer, "ACC-C", "ACC-A"),
	}

	patterns := newDetector().DetectRoundTripping(txs)
	var cycle *models.DetectedPattern
	for i := range patterns {
		for _, ind := range patterns[i].Indicators {
			if ind == "multi_hop_cycle" {
				cycle = &patterns[i]
			}
		}
	}
	if cycle == nil {
		t.Fatal("Expected a multi-hop cycle pattern")
	}
	if len(cycle.TransactionIDs) != 3 {
		t.Errorf("Cycle must reference its 3 legs, got %d", len(cycle.TransactionIDs))
	}

	// The same loop must dedupe to a single cycle pattern regardless of
	// which account the DFS entered from.
	count := 0
	for _, p := range patterns {
		for _, ind := range p.Indicators {
			if ind == "multi_hop_cycle" {
				count++
			}
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 deduped cycle, got %d", count)
	}
}

func TestDetectRapidMovement_CreditDebitPair(t *testing.T) {
	customer := uuid.New()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	in := txAt(base, 9500, models.DirectionCredit, "ACC-A", "")
	in.CustomerID = customer
	outTx := txAt(base.Add(3*time.Hour), 9000, models.DirectionDebit, "ACC-A", "ACC-X")
	outTx.CustomerID = customer

	patterns := newDetector().DetectRapidMovement([]models.Transaction{in, outTx})
	if len(patterns) != 1 {
		t.Fatalf("Expected 1 rapid movement pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.RapidMove == nil || p.RapidMove.GapHours != 3 {
		t.Errorf("Expected 3h gap, got %+v", p.RapidMove)
	}
	if len(p.TransactionIDs) != 2 {
		t.Errorf("Pattern must reference the credit and the debit, got %d", len(p.TransactionIDs))
	}

	// Debit 30 hours later falls outside the 24h window.
	late := txAt(base.Add(30*time.Hour), 9000, models.DirectionDebit, "ACC-A", "ACC-X")
	if got := newDetector().DetectRapidMovement([]models.Transaction{in, late}); len(got) != 0 {
		t.Errorf("Out-of-window debit must not pair, got %d patterns", len(got))
	}
}

func TestAnalyze_KeepsOverlappingPatterns(t *testing.T) {
	// One transaction set can legitimately trip several detectors; all
	// patterns are kept, dedup is an alerting concern.
	customer := uuid.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var txs []models.Transaction
	for i := 0; i < 3; i++ {
		tx := txAt(base.Add(time.Duration(i)*time.Hour), 9500, models.DirectionCredit, "ACC-A", "")
		tx.IsCash = true
		tx.CustomerID = customer
		txs = append(txs, tx)
	}
	outTx := txAt(base.Add(4*time.Hour), 9400, models.DirectionDebit, "ACC-A", "ACC-X")
	outTx.CustomerID = customer
	txs = append(txs, outTx)

	patterns := newDetector().Analyze(txs)
	types := make(map[models.PatternType]int)
	for _, p := range patterns {
		types[p.PatternType]++
	}
	if types[models.PatternStructuring] == 0 {
		t.Error("Expected a structuring pattern")
	}
	if types[models.PatternRapidMovement] == 0 {
		t.Error("Expected a rapid movement pattern")
	}
}

func TestAnalyzer_RunCompletes(t *testing.T) {
	customer := uuid.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var txs []models.Transaction
	for i := 0; i < 5; i++ {
		tx := txAt(base.Add(time.Duration(i)*time.Hour), 9500, models.DirectionCredit, "ACC-C1", "")
		tx.IsCash = true
		tx.CustomerID = customer
		txs = append(txs, tx)
	}

	var received atomic.Int64
	analyzer := NewAnalyzer(newDetector(), 0)
	job := analyzer.Run(context.Background(), "nightly", txs, func(models.DetectedPattern) { received.Add(1) })

	deadline := time.After(5 * time.Second)
	for job.CurrentStatus() == models.JobRunning {
		select {
		case <-deadline:
			t.Fatal("Analysis job did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if job.CurrentStatus() != models.JobCompleted {
		t.Fatalf("Expected completed, got %s", job.CurrentStatus())
	}
	progress := job.Progress()
	if progress.Processed != 4 {
		t.Errorf("Expected all 4 detectors processed, got %d", progress.Processed)
	}
	if progress.MatchesFound == 0 {
		t.Error("Expected at least the structuring pattern")
	}
	if got, _ := analyzer.GetJob(job.ID); got == nil {
		t.Error("Job must be resolvable by ID")
	}
	if len(job.Patterns()) != progress.MatchesFound {
		t.Errorf("Patterns() must agree with the counter: %d vs %d", len(job.Patterns()), progress.MatchesFound)
	}
	if int(received.Load()) != progress.MatchesFound {
		t.Errorf("Callback count must agree with the counter: %d vs %d", received.Load(), progress.MatchesFound)
	}
}
