package patterns

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/refdata"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Batch Pattern Detectors
//
// Four graph/statistical detectors over transaction batches: structuring,
// layering chains, round-tripping and rapid movement. Detectors are pure
// functions of the input batch plus the current rule parameters; every
// emitted pattern pins the (rule ID, rule version) that produced it.
//
// When several detectors touch the same transaction they all emit: the
// patterns describe different phenomena. Dedup happens downstream at
// alert creation, keyed on (entity, pattern type, day).

// Detector evaluates transaction batches against the configured rules.
type Detector struct {
	store *refdata.RuleStore
}

// NewDetector wires a detector to the rule store.
func NewDetector(store *refdata.RuleStore) *Detector {
	return &Detector{store: store}
}

// Analyze runs all four batch detectors and returns every pattern found.
func (d *Detector) Analyze(txs []models.Transaction) []models.DetectedPattern {
	var out []models.DetectedPattern
	out = append(out, d.DetectStructuring(txs)...)
	out = append(out, d.DetectLayering(txs)...)
	out = append(out, d.DetectRoundTripping(txs)...)
	out = append(out, d.DetectRapidMovement(txs)...)
	return out
}

func (d *Detector) ruleFor(code string) *models.Rule {
	if r, ok := d.store.FindByCode(code); ok {
		return r
	}
	return nil
}

func amountOf(tx *models.Transaction) float64 {
	return tx.Amount.Amount.InexactFloat64()
}

func stamp(p *models.DetectedPattern, rule *models.Rule) models.DetectedPattern {
	p.ID = uuid.New()
	p.PatternType = rule.PatternType
	p.Severity = rule.Severity
	p.Status = models.PatternDetected
	p.RuleID = rule.ID
	p.RuleVersion = rule.Version
	p.DetectionDate = time.Now().UTC()
	return *p
}

// DetectStructuring evaluates below-threshold cash activity per customer
// within the rule window. Confidence starts at 0.5 and gains +0.2 for low
// amount variance, +0.2 when more than half the amounts are round
// hundreds, +0.3 when the total crosses 1.5x the reporting threshold.
func (d *Detector) DetectStructuring(txs []models.Transaction) []models.DetectedPattern {
	rule := d.ruleFor("STRUCT_001")
	if rule == nil {
		return nil
	}
	threshold := rule.Threshold("amount", 10000)
	minCount := int(rule.Param("min_count", 3))
	window := time.Duration(rule.Param("window_hours", 24)) * time.Hour

	byCustomer := make(map[uuid.UUID][]*models.Transaction)
	for i := range txs {
		tx := &txs[i]
		if !tx.IsCash {
			continue
		}
		amt := amountOf(tx)
		if amt < 0.8*threshold || amt >= threshold {
			continue
		}
		byCustomer[tx.CustomerID] = append(byCustomer[tx.CustomerID], tx)
	}

	var out []models.DetectedPattern
	for customerID, candidates := range byCustomer {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Timestamp.Before(candidates[j].Timestamp)
		})

		// Sliding window: for each start, take the longest run inside the
		// window and emit once for the best one.
		bestStart, bestEnd := -1, -1
		for i := range candidates {
			j := i
			for j+1 < len(candidates) && candidates[j+1].Timestamp.Sub(candidates[i].Timestamp) <= window {
				j++
			}
			if j-i+1 >= minCount && j-i > bestEnd-bestStart {
				bestStart, bestEnd = i, j
			}
		}
		if bestStart < 0 {
			continue
		}
		group := candidates[bestStart : bestEnd+1]

		total := 0.0
		rounds := 0
		ids := make([]uuid.UUID, 0, len(group))
		amounts := make([]float64, 0, len(group))
		for _, tx := range group {
			amt := amountOf(tx)
			total += amt
			amounts = append(amounts, amt)
			if math.Mod(amt, 100) == 0 {
				rounds++
			}
			ids = append(ids, tx.ID)
		}
		roundFraction := float64(rounds) / float64(len(group))

		confidence := 0.5
		indicators := []string{"multiple_below_threshold"}
		if coefficientOfVariation(amounts) < 0.1 {
			confidence += 0.2
			indicators = append(indicators, "similar_amounts")
		}
		if roundFraction > 0.5 {
			confidence += 0.2
			indicators = append(indicators, "round_amounts")
		}
		if total > 1.5*threshold {
			confidence += 0.3
			indicators = append(indicators, "total_exceeds_threshold")
		}
		if confidence > 1.0 {
			confidence = 1.0
		}

		p := models.DetectedPattern{
			PrimaryEntityID: customerID,
			TransactionIDs:  ids,
			Confidence:      confidence,
			Indicators:      indicators,
			Structuring: &models.StructuringDetail{
				Threshold:     threshold,
				Count:         len(group),
				TotalAmount:   total,
				WindowHours:   rule.Param("window_hours", 24),
				RoundFraction: roundFraction,
			},
		}
		out = append(out, stamp(&p, rule))
	}
	return out
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / mean
}

// flowEdge is one account-to-account movement in the transfer graph.
type flowEdge struct {
	tx     *models.Transaction
	target string
}

// buildGraph indexes account -> outgoing edges for transfers and debits
// that name a target account.
func buildGraph(txs []models.Transaction) map[string][]flowEdge {
	graph := make(map[string][]flowEdge)
	for i := range txs {
		tx := &txs[i]
		if tx.SourceAccount == "" || tx.TargetAccount == "" || tx.SourceAccount == tx.TargetAccount {
			continue
		}
		if tx.Direction == models.DirectionCredit {
			continue
		}
		graph[tx.SourceAccount] = append(graph[tx.SourceAccount], flowEdge{tx: tx, target: tx.TargetAccount})
	}
	return graph
}

// DetectLayering finds chains of transfers through intermediary accounts.
// DFS from every node up to max_hops with a per-path visited copy; any
// simple path of min_chain or more hops is a candidate with confidence
// 0.6 + 0.1*(hops - min_chain), capped at 1.0.
func (d *Detector) DetectLayering(txs []models.Transaction) []models.DetectedPattern {
	rule := d.ruleFor("LAYER_001")
	if rule == nil {
		return nil
	}
	maxHops := int(rule.Param("max_hops", 10))
	minChain := int(rule.Param("min_chain", 3))

	graph := buildGraph(txs)

	starts := make([]string, 0, len(graph))
	for node := range graph {
		starts = append(starts, node)
	}
	sort.Strings(starts)

	seen := make(map[string]bool)
	var out []models.DetectedPattern

	var walk func(node string, visited map[string]bool, path []flowEdge)
	walk = func(node string, visited map[string]bool, path []flowEdge) {
		if len(path) >= maxHops {
			return
		}
		for _, edge := range graph[node] {
			if visited[edge.target] {
				continue
			}
			next := make([]flowEdge, len(path), len(path)+1)
			copy(next, path)
			next = append(next, edge)

			if len(next) >= minChain {
				key := pathKey(next)
				if !seen[key] {
					seen[key] = true
					out = append(out, d.layeringPattern(rule, next, minChain))
				}
			}

			// Copy the visited set per branch so sibling paths stay
			// independent.
			branch := make(map[string]bool, len(visited)+1)
			for k := range visited {
				branch[k] = true
			}
			branch[edge.target] = true
			walk(edge.target, branch, next)
		}
	}

	for _, start := range starts {
		walk(start, map[string]bool{start: true}, nil)
	}
	return out
}

func pathKey(path []flowEdge) string {
	var b strings.Builder
	b.WriteString(path[0].tx.SourceAccount)
	for _, edge := range path {
		b.WriteString("->")
		b.WriteString(edge.target)
	}
	return b.String()
}

func (d *Detector) layeringPattern(rule *models.Rule, path []flowEdge, minChain int) models.DetectedPattern {
	confidence := 0.6 + 0.1*float64(len(path)-minChain)
	if confidence > 1.0 {
		confidence = 1.0
	}

	ids := make([]uuid.UUID, 0, len(path))
	var intermediates []string
	for i, edge := range path {
		ids = append(ids, edge.tx.ID)
		if i < len(path)-1 {
			intermediates = append(intermediates, edge.target)
		}
	}

	p := models.DetectedPattern{
		PrimaryEntityID: path[0].tx.CustomerID,
		TransactionIDs:  ids,
		Confidence:      confidence,
		Indicators:      []string{"multi_hop_chain"},
		Layering: &models.LayeringDetail{
			SourceAccount:        path[0].tx.SourceAccount,
			DestinationAccount:   path[len(path)-1].target,
			IntermediateEntities: intermediates,
			LayerCount:           len(path),
		},
	}
	return stamp(&p, rule)
}

// DetectRoundTripping flags accounts whose counterparty appears on both
// sides with the inbound total returning at least min_return_ratio of the
// outbound. Multi-hop round trips are caught separately by bounded cycle
// detection over the transfer graph.
func (d *Detector) DetectRoundTripping(txs []models.Transaction) []models.DetectedPattern {
	rule := d.ruleFor("ROUNDTRIP_001")
	if rule == nil {
		return nil
	}
	minRatio := rule.Param("min_return_ratio", 0.8)

	type flow struct {
		outbound, inbound float64
		txIDs             []uuid.UUID
		customerID        uuid.UUID
	}
	flows := make(map[string]map[string]*flow) // account -> counterparty -> totals

	for i := range txs {
		tx := &txs[i]
		account := tx.SourceAccount
		counterparty := tx.CounterpartyID
		if counterparty == "" {
			counterparty = tx.TargetAccount
		}
		if account == "" || counterparty == "" {
			continue
		}
		if flows[account] == nil {
			flows[account] = make(map[string]*flow)
		}
		f := flows[account][counterparty]
		if f == nil {
			f = &flow{customerID: tx.CustomerID}
			flows[account][counterparty] = f
		}
		switch tx.Direction {
		case models.DirectionDebit, models.DirectionTransfer:
			f.outbound += amountOf(tx)
		case models.DirectionCredit:
			f.inbound += amountOf(tx)
		}
		f.txIDs = append(f.txIDs, tx.ID)
	}

	accounts := make([]string, 0, len(flows))
	for account := range flows {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	var out []models.DetectedPattern
	for _, account := range accounts {
		counterparties := make([]string, 0, len(flows[account]))
		for cp := range flows[account] {
			counterparties = append(counterparties, cp)
		}
		sort.Strings(counterparties)

		for _, cp := range counterparties {
			f := flows[account][cp]
			if f.outbound <= 0 || f.inbound < minRatio*f.outbound {
				continue
			}
			p := models.DetectedPattern{
				PrimaryEntityID: f.customerID,
				TransactionIDs:  f.txIDs,
				Confidence:      0.8,
				Indicators:      []string{"funds_returned_to_origin"},
				RoundTrip: &models.RoundTripDetail{
					Account:        account,
					Counterparty:   cp,
					OutboundAmount: f.outbound,
					InboundAmount:  f.inbound,
					ReturnRatio:    f.inbound / f.outbound,
				},
			}
			out = append(out, stamp(&p, rule))
		}
	}

	out = append(out, d.detectCycles(rule, txs)...)
	return out
}

const (
	maxCycleStarts = 20
	maxCycleLength = 10
)

// detectCycles finds multi-hop round trips: DFS from a bounded set of
// start nodes over the transfer graph looking for cycles of at least 3
// distinct accounts.
func (d *Detector) detectCycles(rule *models.Rule, txs []models.Transaction) []models.DetectedPattern {
	graph := buildGraph(txs)

	starts := make([]string, 0, len(graph))
	for node := range graph {
		starts = append(starts, node)
	}
	sort.Strings(starts)
	if len(starts) > maxCycleStarts {
		starts = starts[:maxCycleStarts]
	}

	seen := make(map[string]bool)
	var out []models.DetectedPattern

	var walk func(origin, node string, visited map[string]bool, path []flowEdge)
	walk = func(origin, node string, visited map[string]bool, path []flowEdge) {
		if len(path) >= maxCycleLength {
			return
		}
		for _, edge := range graph[node] {
			next := make([]flowEdge, len(path), len(path)+1)
			copy(next, path)
			next = append(next, edge)

			if edge.target == origin && len(next) >= 3 {
				key := cycleKey(next)
				if !seen[key] {
					seen[key] = true
					out = append(out, d.cyclePattern(rule, next))
				}
				continue
			}
			if visited[edge.target] {
				continue
			}
			branch := make(map[string]bool, len(visited)+1)
			for k := range visited {
				branch[k] = true
			}
			branch[edge.target] = true
			walk(origin, edge.target, branch, next)
		}
	}

	for _, start := range starts {
		walk(start, start, map[string]bool{start: true}, nil)
	}
	return out
}

// cycleKey canonicalizes a cycle by rotating the node sequence to start
// at its smallest account, so the same loop discovered from different
// entry points dedupes to one pattern.
func cycleKey(cycle []flowEdge) string {
	nodes := make([]string, len(cycle))
	for i, edge := range cycle {
		nodes[i] = edge.tx.SourceAccount
	}
	min := 0
	for i := 1; i < len(nodes); i++ {
		if nodes[i] < nodes[min] {
			min = i
		}
	}
	var b strings.Builder
	for i := 0; i < len(nodes); i++ {
		b.WriteString(nodes[(min+i)%len(nodes)])
		b.WriteString("->")
	}
	return b.String()
}

func (d *Detector) cyclePattern(rule *models.Rule, cycle []flowEdge) models.DetectedPattern {
	ids := make([]uuid.UUID, 0, len(cycle))
	total := 0.0
	for _, edge := range cycle {
		ids = append(ids, edge.tx.ID)
		total += amountOf(edge.tx)
	}
	returned := amountOf(cycle[len(cycle)-1].tx)
	sent := amountOf(cycle[0].tx)
	ratio := 0.0
	if sent > 0 {
		ratio = returned / sent
	}

	p := models.DetectedPattern{
		PrimaryEntityID: cycle[0].tx.CustomerID,
		TransactionIDs:  ids,
		Confidence:      0.8,
		Indicators:      []string{"funds_returned_to_origin", "multi_hop_cycle"},
		RoundTrip: &models.RoundTripDetail{
			Account:        cycle[0].tx.SourceAccount,
			Counterparty:   cycle[len(cycle)-2].target,
			OutboundAmount: sent,
			InboundAmount:  returned,
			ReturnRatio:    ratio,
		},
	}
	return stamp(&p, rule)
}

// DetectRapidMovement pairs each credit with the first qualifying debit
// inside the rule window, per account.
func (d *Detector) DetectRapidMovement(txs []models.Transaction) []models.DetectedPattern {
	rule := d.ruleFor("RAPID_001")
	if rule == nil {
		return nil
	}
	window := time.Duration(rule.Param("window_hours", 24)) * time.Hour
	minRatio := rule.Param("min_ratio", 0.9)
	minAmount := rule.Threshold("min_amount", 1000)

	byAccount := make(map[string][]*models.Transaction)
	for i := range txs {
		tx := &txs[i]
		if tx.SourceAccount == "" {
			continue
		}
		byAccount[tx.SourceAccount] = append(byAccount[tx.SourceAccount], tx)
	}

	accounts := make([]string, 0, len(byAccount))
	for account := range byAccount {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	var out []models.DetectedPattern
	for _, account := range accounts {
		entries := byAccount[account]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		})

		for i, credit := range entries {
			if credit.Direction != models.DirectionCredit || amountOf(credit) < minAmount {
				continue
			}
			for _, debit := range entries[i+1:] {
				if debit.Direction != models.DirectionDebit {
					continue
				}
				gap := debit.Timestamp.Sub(credit.Timestamp)
				if gap > window {
					break
				}
				creditAmt := amountOf(credit)
				debitAmt := amountOf(debit)
				if debitAmt < minAmount || debitAmt/creditAmt < minRatio {
					continue
				}
				p := models.DetectedPattern{
					PrimaryEntityID: credit.CustomerID,
					TransactionIDs:  []uuid.UUID{credit.ID, debit.ID},
					Confidence:      0.75,
					Indicators:      []string{"funds_in_and_out", "short_holding_period"},
					RapidMove: &models.RapidMoveDetail{
						Account:      account,
						CreditAmount: creditAmt,
						DebitAmount:  debitAmt,
						GapHours:     gap.Hours(),
					},
				}
				out = append(out, stamp(&p, rule))
				break
			}
		}
	}
	return out
}
