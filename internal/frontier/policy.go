package frontier

import (
	"fmt"
	"math"
	"time"
)

// Policy holds the scoring and scheduling knobs for the frontier. The
// exact curves are deliberately tunable; defaults below match the
// production configuration.
type Policy struct {
	// BaseScore is the priority assigned to a depth-0 seed.
	BaseScore float64
	// DepthPenalty is subtracted per link-hop from a seed.
	DepthPenalty float64
	// ChangeBoost is added on success when the content changed, so
	// frequently updated pages are revisited sooner.
	ChangeBoost float64
	// ErrorDecay multiplies the score on each consecutive transient
	// error (0 < ErrorDecay < 1).
	ErrorDecay float64
	// MinScore is the floor that keeps error-decayed rows schedulable.
	MinScore float64
	// MaxErrors is the consecutive-error threshold that forces a row
	// into blocked/max_errors.
	MaxErrors int
	// RevisitBase is the revisit interval for a page at BaseScore.
	RevisitBase time.Duration
	// RevisitMin and RevisitMax clamp the score-derived interval.
	RevisitMin time.Duration
	RevisitMax time.Duration
	// ErrorBackoffBase is the delay after the first transient error;
	// each further error doubles it up to ErrorBackoffMax.
	ErrorBackoffBase time.Duration
	ErrorBackoffMax  time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		BaseScore:        100.0,
		DepthPenalty:     5.0,
		ChangeBoost:      25.0,
		ErrorDecay:       0.5,
		MinScore:         1.0,
		MaxErrors:        5,
		RevisitBase:      24 * time.Hour,
		RevisitMin:       time.Hour,
		RevisitMax:       7 * 24 * time.Hour,
		ErrorBackoffBase: 10 * time.Minute,
		ErrorBackoffMax:  24 * time.Hour,
	}
}

// InitialScore computes the registration score for a URL at the given
// link depth.
func (p Policy) InitialScore(depth int) float64 {
	score := p.BaseScore - float64(depth)*p.DepthPenalty
	if score < p.MinScore {
		return p.MinScore
	}
	return score
}

// SuccessScore recomputes priority after a successful fetch. Shallow
// pages keep their depth-derived baseline; changed content earns a boost.
func (p Policy) SuccessScore(depth int, changed bool) float64 {
	score := p.InitialScore(depth)
	if changed {
		score += p.ChangeBoost
	}
	return score
}

// DecayScore halves (by ErrorDecay) the score after a transient error,
// flooring at MinScore so the row stays schedulable.
func (p Policy) DecayScore(score float64) float64 {
	decayed := score * p.ErrorDecay
	if decayed < p.MinScore {
		return p.MinScore
	}
	return decayed
}

// RevisitInterval maps a score to the next revisit delay. Higher scores
// revisit sooner: the interval scales with BaseScore/score and is
// clamped to [RevisitMin, RevisitMax].
func (p Policy) RevisitInterval(score float64) time.Duration {
	if score < p.MinScore {
		score = p.MinScore
	}
	interval := time.Duration(float64(p.RevisitBase) * p.BaseScore / score)
	if interval < p.RevisitMin {
		return p.RevisitMin
	}
	if interval > p.RevisitMax {
		return p.RevisitMax
	}
	return interval
}

// ErrorBackoff returns the exponential retry delay after errorCount
// consecutive transient errors.
func (p Policy) ErrorBackoff(errorCount int) time.Duration {
	if errorCount < 1 {
		errorCount = 1
	}
	backoff := float64(p.ErrorBackoffBase) * math.Pow(2, float64(errorCount-1))
	if backoff > float64(p.ErrorBackoffMax) {
		return p.ErrorBackoffMax
	}
	return time.Duration(backoff)
}

// ApplyOutcome computes the post-outcome state of a claimed target. It is
// a pure function so every store backend shares the same transition
// logic; stores run it inside their claim-row transaction.
//
// A target no longer in crawling status yields ErrNotClaimed and the
// input unchanged, which makes duplicate or delayed outcome reports
// harmless.
func ApplyOutcome(t CrawlTarget, o Outcome, now time.Time, p Policy) (CrawlTarget, error) {
	if t.Status != StatusCrawling {
		return t, ErrNotClaimed
	}

	switch o.Kind {
	case OutcomeSuccess:
		if err := t.transition(StatusDone); err != nil {
			return t, err
		}
		t.ErrorCount = 0
		t.Score = p.SuccessScore(t.Depth, o.Changed)
		t.BlockedReason = ""
		crawledAt := now
		t.LastCrawledAt = &crawledAt
		t.NextCrawlAt = now.Add(p.RevisitInterval(t.Score))

	case OutcomeTransientError:
		t.ErrorCount++
		if t.ErrorCount >= p.MaxErrors {
			// Retry cost cap: past the threshold the row is blocked no
			// matter what reason the worker reported.
			if err := t.transition(StatusBlocked); err != nil {
				return t, err
			}
			t.BlockedReason = BlockedMaxErrors
		} else {
			if err := t.transition(StatusError); err != nil {
				return t, err
			}
			t.Score = p.DecayScore(t.Score)
			t.NextCrawlAt = now.Add(p.ErrorBackoff(t.ErrorCount))
		}
		crawledAt := now
		t.LastCrawledAt = &crawledAt

	case OutcomePermanentBlock:
		if err := t.transition(StatusBlocked); err != nil {
			return t, err
		}
		t.BlockedReason = o.Blocked
		if t.BlockedReason == "" {
			t.BlockedReason = BlockedOther
		}

	case OutcomeNotFound:
		if err := t.transition(StatusDeleted); err != nil {
			return t, err
		}
		deletedAt := now
		t.DeletedAt = &deletedAt
		t.BlockedReason = ""

	default:
		return t, fmt.Errorf("unknown outcome kind %q", o.Kind)
	}

	t.UpdatedAt = now
	return t, nil
}

// ReclaimExpired computes the state of a crawling row whose lease timed
// out. The stall is treated as a worker crash: one error occurrence and
// a backoff before the row becomes claimable again.
func ReclaimExpired(t CrawlTarget, now time.Time, p Policy) (CrawlTarget, error) {
	if t.Status != StatusCrawling {
		return t, ErrNotClaimed
	}
	if err := t.transition(StatusError); err != nil {
		return t, err
	}
	t.ErrorCount++
	t.Score = p.DecayScore(t.Score)
	t.NextCrawlAt = now.Add(p.ErrorBackoff(t.ErrorCount))
	t.UpdatedAt = now
	return t, nil
}
