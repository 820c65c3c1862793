package screening

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/matching"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Screening Engine
//
// Scores one subject against every active entry of the requested lists.
// Evaluation is synchronous and allocation-light: reference data is
// in-memory snapshots, no I/O happens on this path.
//
// Score composition per candidate entry:
//   name       0.60  (max over subject names x entry names)
//   identifier 0.30  (1.0 on any exact identifier match)
//   + 0.05 DOB exact, + 0.05 nationality overlap
// clipped to [0,1]; candidates below 0.5 are rejected outright, and only
// candidates at or above the request threshold (default 0.8) are kept.

const (
	DefaultThreshold  = 0.8
	rejectFloor       = 0.5
	exactNameScore    = 0.95
	fuzzyNameScore    = 0.7
	// AutoEscalateScore is the overall score at or above which the subject
	// is treated as a confirmed sanctions exposure: the profile flag flips
	// and a critical alert fires.
	AutoEscalateScore = 0.95
)

// Engine evaluates screening requests against list snapshots.
type Engine struct{}

// NewEngine creates a screening engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Screen evaluates one request against the given lists and returns the
// sorted result. Sorting is stable on (score desc, list entry ID asc) so
// concurrent evaluations of the same snapshot always agree.
func (e *Engine) Screen(req models.ScreeningRequest, lists []*models.ScreeningList) models.ScreeningResult {
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	subjectNames := append([]string{req.Name}, req.Aliases...)

	var matches []models.ScreeningMatch
	for _, list := range lists {
		for i := range list.Entries {
			entry := &list.Entries[i]
			if !entry.Active {
				continue
			}
			match, ok := e.scoreEntry(req, subjectNames, entry)
			if !ok || match.OverallScore < threshold {
				continue
			}
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].OverallScore != matches[j].OverallScore {
			return matches[i].OverallScore > matches[j].OverallScore
		}
		return strings.Compare(matches[i].ListEntryID.String(), matches[j].ListEntryID.String()) < 0
	})

	status := models.ScreeningClear
	if len(matches) > 0 {
		status = models.ScreeningPendingReview
	}

	return models.ScreeningResult{
		ID:           uuid.New(),
		RequestID:    req.ID,
		SubjectID:    req.SubjectID,
		SubjectName:  req.Name,
		Matches:      matches,
		Status:       status,
		ScreenedAt:   time.Now().UTC(),
		ListsChecked: len(lists),
	}
}

// scoreEntry computes the composite match score for a single list entry.
// Returns ok=false when the candidate falls below the reject floor.
func (e *Engine) scoreEntry(req models.ScreeningRequest, subjectNames []string, entry *models.ListEntry) (models.ScreeningMatch, bool) {
	entryNames := append([]string{entry.PrimaryName}, entry.Aliases...)

	nameScore := 0.0
	for _, sn := range subjectNames {
		for _, en := range entryNames {
			if s := matching.NameSimilarity(sn, en); s > nameScore {
				nameScore = s
			}
		}
	}

	idScore := 0.0
	for _, sid := range req.Identifiers {
		for _, eid := range entry.Identifiers {
			if matching.IdentifierMatch(sid, eid) {
				idScore = 1.0
				break
			}
		}
		if idScore == 1.0 {
			break
		}
	}

	dobScore := 0.0
	if req.DateOfBirth != nil && entry.DateOfBirth != nil &&
		sameDay(*req.DateOfBirth, *entry.DateOfBirth) {
		dobScore = 1.0
	}

	natScore := 0.0
	for _, rn := range req.Nationalities {
		for _, en := range entry.Nationalities {
			if strings.EqualFold(rn, en) {
				natScore = 1.0
				break
			}
		}
		if natScore == 1.0 {
			break
		}
	}

	overall := 0.6*nameScore + 0.3*idScore
	if dobScore == 1.0 {
		overall += 0.05
	}
	if natScore == 1.0 {
		overall += 0.05
	}
	if overall > 1.0 {
		overall = 1.0
	}

	if overall < rejectFloor {
		return models.ScreeningMatch{}, false
	}

	matchType := models.MatchPartial
	switch {
	case nameScore >= exactNameScore:
		matchType = models.MatchExact
	case nameScore >= fuzzyNameScore:
		matchType = models.MatchFuzzy
	}

	return models.ScreeningMatch{
		ListEntryID:  entry.ID,
		ListID:       entry.ListID,
		EntryName:    entry.PrimaryName,
		Program:      entry.Program,
		OverallScore: overall,
		FieldScores: models.FieldScores{
			Name:        nameScore,
			Identifier:  idScore,
			DOB:         dobScore,
			Nationality: natScore,
		},
		MatchType: matchType,
	}, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
