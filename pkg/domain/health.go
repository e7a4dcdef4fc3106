package domain

import (
	"math"

	"journeycore/pkg/domain/textenc"
)

// Struggle penalties and opportunity rewards per tag level.
var healthWeights = map[Level]struct {
	customerStruggle int
	internalStruggle int
	opportunity      int
}{
	LevelHigh:   {-12, -10, 10},
	LevelMedium: {-6, -5, 5},
	LevelLow:    {-2, -2, 2},
}

const (
	healthBase        = 50
	healthJobMixBonus = 25
)

// HealthScore computes a phase's health on a 0..100 scale. The score starts
// at a neutral base, subtracts per struggle, adds per opportunity raised
// against the phase, and adds a bonus proportional to the share of the
// phase's jobs that are social or emotional.
//
// Opportunities and jobs are resolved by the caller so the score reflects the
// live relational records. Passing nil for either falls back to the phase's
// legacy embedded text encodings, which keeps the score meaningful for
// snapshots the migration has not touched yet.
func HealthScore(p Phase, opps []Opportunity, jobs []Job) int {
	score := float64(healthBase)

	for _, item := range textenc.ParseStruggles(p.CustomerStruggles) {
		score += float64(healthWeights[levelOrMedium(Level(item.Tag))].customerStruggle)
	}
	for _, item := range textenc.ParseStruggles(p.InternalStruggles) {
		score += float64(healthWeights[levelOrMedium(Level(item.Tag))].internalStruggle)
	}

	if opps != nil {
		for _, opp := range opps {
			score += float64(healthWeights[levelOrMedium(opp.Tag)].opportunity)
		}
	} else {
		for _, item := range textenc.ParseOpportunities(p.OpportunitiesText) {
			score += float64(healthWeights[levelOrMedium(Level(item.Tag))].opportunity)
		}
	}

	var total, socialEmotional int
	if jobs != nil {
		total = len(jobs)
		for _, job := range jobs {
			if job.Tag == JobSocial || job.Tag == JobEmotional {
				socialEmotional++
			}
		}
	} else {
		items := textenc.ParseJobs(p.JobsText)
		total = len(items)
		for _, item := range items {
			if JobTag(item.Tag) == JobSocial || JobTag(item.Tag) == JobEmotional {
				socialEmotional++
			}
		}
	}
	if total > 0 {
		score += float64(socialEmotional) / float64(total) * healthJobMixBonus
	}

	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

func levelOrMedium(l Level) Level {
	if l.Valid() {
		return l
	}
	return LevelMedium
}
