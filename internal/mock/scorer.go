package mock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/ratemysite/backend/internal/scoring"
)

// profile shapes how a simulated analysis behaves.
type profile struct {
	name      string
	stepDelay time.Duration
	steps     int
	stallAt   int // step that takes stallMult times longer (0 = none)
	stallMult int
	fail      bool
}

var profiles = []profile{
	{name: "steady", stepDelay: 300 * time.Millisecond, steps: 5},
	{name: "burst", stepDelay: 80 * time.Millisecond, steps: 3},
	{name: "stall", stepDelay: 200 * time.Millisecond, steps: 5, stallAt: 3, stallMult: 6},
	{name: "methodical", stepDelay: 400 * time.Millisecond, steps: 6},
}

var phases = []string{
	"Creating fresh browser",
	"Submitting to RateMySite",
	"Waiting for report",
	"Reading report",
	"Parsing output",
	"Done",
}

var companyWords = []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli", "Vandelay", "Stark", "Wonka"}

// Scorer fabricates deterministic reports for any http(s) URL. The same URL
// always yields the same scores; hosts containing "fail" or "error" produce
// a failure.
type Scorer struct {
	// Speed divides every delay; values <= 0 mean 1.
	Speed float64
}

func NewScorer() *Scorer {
	return &Scorer{Speed: 1}
}

func (s *Scorer) Analyze(ctx context.Context, target string, r scoring.Reporter) (scoring.Fields, error) {
	norm, err := scoring.NormalizeURL(target)
	if err != nil {
		r.Debug("ERROR: " + err.Error())
		return nil, err
	}

	seed := seedFor(norm)
	rng := rand.New(rand.NewSource(int64(seed)))
	p := profiles[seed%uint64(len(profiles))]
	if strings.Contains(norm, "fail") || strings.Contains(norm, "error") {
		p.fail = true
	}
	r.Debug(fmt.Sprintf("mock profile %q for %s", p.name, norm))

	for step := 1; step <= p.steps; step++ {
		delay := p.stepDelay
		if step == p.stallAt {
			delay *= time.Duration(p.stallMult)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		r.Progress(phaseFor(step, p.steps), step, p.steps)
		if p.fail && step == p.steps-1 {
			r.Debug("Simulated backend failure")
			return nil, errors.New("mock: simulated analysis failure")
		}
	}

	return fabricate(norm, rng), nil
}

func (s *Scorer) sleep(ctx context.Context, d time.Duration) error {
	if s.Speed > 0 {
		d = time.Duration(float64(d) / s.Speed)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func phaseFor(step, steps int) string {
	if step == steps {
		return phases[len(phases)-1]
	}
	i := (step - 1) * (len(phases) - 1) / steps
	return phases[i]
}

func seedFor(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func fabricate(target string, rng *rand.Rand) scoring.Fields {
	score := func(lo, hi int) string { return strconv.Itoa(lo + rng.Intn(hi-lo+1)) }
	company := companyWords[rng.Intn(len(companyWords))] + " " + []string{"Corp", "Labs", "Inc", "Studio"}[rng.Intn(4)]

	report := fmt.Sprintf("Company: %s\nOverall Score: %s\n\nDescription of Website: Simulated report for %s.\n\n"+
		"Consumer Score: %s\nDeveloper Score: %s\nInvestor Score: %s\nClarity Score: %s\n"+
		"Visual Design Score: %s\nUX Score: %s\nTrust Score: %s\nValue Prop Score: %s\n",
		company, score(40, 95), target,
		score(30, 100), score(30, 100), score(30, 100), score(30, 100),
		score(30, 100), score(30, 100), score(30, 100), score(30, 100))
	return scoring.ParseFields(target, report)
}
