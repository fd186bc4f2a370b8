package risk

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Action is the outcome of a risk assessment.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionChallenge Action = "challenge"
	ActionBlock     Action = "block"
)

// Factor names, in the order they are evaluated and reported.
const (
	FactorNewCountry      = "new_country"
	FactorHighRiskCountry = "high_risk_country"
	FactorNewDevice       = "new_device"
	FactorUnusualTime     = "unusual_time"
	FactorRecentFailures  = "recent_failures"
	FactorNewUserAgent    = "new_user_agent"
)

const (
	weightNewCountry      = 30
	weightHighRiskCountry = 20
	weightNewDevice       = 25
	weightUnusualTime     = 15
	weightRecentFailures  = 20
	weightNewUserAgent    = 10

	maxScore = 100
)

// Policy holds the thresholds used to turn signals into a decision.
type Policy struct {
	HighRiskCountries  []string
	BlockThreshold     int
	ChallengeThreshold int
	// FailureThreshold is exclusive: more than this many recent failures triggers the factor.
	FailureThreshold int
	// HourTolerance is the distance in hours a login may be from a usual hour.
	HourTolerance int
	TopHours      int
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		BlockThreshold:     75,
		ChallengeThreshold: 50,
		FailureThreshold:   3,
		HourTolerance:      2,
		TopHours:           3,
	}
}

// Signals is everything Assess needs to know about one login attempt.
type Signals struct {
	// Country is the ISO code resolved from the origin address; empty when unknown.
	Country string
	// KnownCountries are countries of successful logins in the history window.
	KnownCountries []string

	DeviceFingerprint string
	// DeviceSeen reports whether any of the user's sessions used the fingerprint recently.
	DeviceSeen bool

	At         time.Time
	LoginTimes []time.Time

	RecentFailures int

	UserAgent        string
	RecentUserAgents []string

	MFAEnabled bool
}

// Assessment is the scored result. It is never persisted outside the audit trail.
type Assessment struct {
	Score   int
	Factors []string
	Action  Action
	Reason  string
}

// Assess computes the score, the ordered factor list and the resulting action.
func Assess(s Signals, p Policy) Assessment {
	var (
		score   int
		factors []string
	)
	add := func(name string, weight int) {
		score += weight
		factors = append(factors, name)
	}

	country := strings.ToUpper(strings.TrimSpace(s.Country))
	if country != "" {
		if len(s.KnownCountries) > 0 && !containsFold(s.KnownCountries, country) {
			add(FactorNewCountry, weightNewCountry)
		}
		if containsFold(p.HighRiskCountries, country) {
			add(FactorHighRiskCountry, weightHighRiskCountry)
		}
	}

	if s.DeviceFingerprint != "" && !s.DeviceSeen {
		add(FactorNewDevice, weightNewDevice)
	}

	if top := TopHours(s.LoginTimes, p.TopHours); len(top) > 0 && !s.At.IsZero() {
		if !nearAny(s.At.UTC().Hour(), top, p.HourTolerance) {
			add(FactorUnusualTime, weightUnusualTime)
		}
	}

	if s.RecentFailures > p.FailureThreshold {
		add(FactorRecentFailures, weightRecentFailures)
	}

	if len(s.RecentUserAgents) > 0 && !contains(s.RecentUserAgents, s.UserAgent) {
		add(FactorNewUserAgent, weightNewUserAgent)
	}

	score = Clamp(score)
	action := Decide(score, s.MFAEnabled, p)

	return Assessment{
		Score:   score,
		Factors: factors,
		Action:  action,
		Reason:  reason(score, factors, action, s.MFAEnabled, p),
	}
}

// Decide maps a score to an action. Accounts without MFA are always challenged.
func Decide(score int, mfaEnabled bool, p Policy) Action {
	switch {
	case score >= p.BlockThreshold:
		return ActionBlock
	case score >= p.ChallengeThreshold || !mfaEnabled:
		return ActionChallenge
	default:
		return ActionAllow
	}
}

// Clamp bounds a raw score to [0,100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// TopHours returns up to n UTC hours with the most logins, most frequent first.
// Ties go to the earlier hour so the result is deterministic.
func TopHours(times []time.Time, n int) []int {
	if n <= 0 || len(times) == 0 {
		return nil
	}

	var counts [24]int
	for _, t := range times {
		counts[t.UTC().Hour()]++
	}

	hours := make([]int, 0, 24)
	for h, c := range counts {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return counts[hours[i]] > counts[hours[j]]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

// RecentDistinct returns the first n distinct non-empty values, preserving order.
// Callers pass values newest first.
func RecentDistinct(values []string, n int) []string {
	if n <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

// hourDistance is the distance between two hours on a 24h clock.
func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return d
}

func nearAny(hour int, usual []int, tolerance int) bool {
	for _, h := range usual {
		if hourDistance(hour, h) <= tolerance {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}

func reason(score int, factors []string, action Action, mfaEnabled bool, p Policy) string {
	list := "none"
	if len(factors) > 0 {
		list = strings.Join(factors, ", ")
	}
	switch action {
	case ActionBlock:
		return fmt.Sprintf("score %d reached block threshold %d (factors: %s)", score, p.BlockThreshold, list)
	case ActionChallenge:
		if score < p.ChallengeThreshold && !mfaEnabled {
			return fmt.Sprintf("score %d below challenge threshold but account has no MFA (factors: %s)", score, list)
		}
		return fmt.Sprintf("score %d reached challenge threshold %d (factors: %s)", score, p.ChallengeThreshold, list)
	default:
		return fmt.Sprintf("score %d below challenge threshold %d (factors: %s)", score, p.ChallengeThreshold, list)
	}
}
