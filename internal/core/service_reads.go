package core

import (
	"sort"

	"journeycore/pkg/domain"
)

// JourneyRows resolves a journey's display row sequence, merging its stored
// order with the built-in rows and its custom rows.
func (s *Service) JourneyRows(journeyID string) ([]string, error) {
	journey, ok := s.store.GetJourney(journeyID)
	if !ok {
		return nil, ErrNotFound{Entity: EntityJourney, ID: journeyID}
	}
	return domain.OrderedRows(journey), nil
}

// PhasesForJourney returns a journey's phases in display order.
func (s *Service) PhasesForJourney(journeyID string) []Phase {
	var phases []Phase
	for _, phase := range s.store.ListPhases() {
		if phase.JourneyID == journeyID {
			phases = append(phases, phase)
		}
	}
	sort.Slice(phases, func(i, j int) bool {
		if phases[i].Order != phases[j].Order {
			return phases[i].Order < phases[j].Order
		}
		return phases[i].ID < phases[j].ID
	})
	return phases
}

// InsightsForClient returns a client's insights in display order.
func (s *Service) InsightsForClient(clientID string) []Insight {
	var insights []Insight
	for _, insight := range s.store.ListInsights() {
		if insight.ClientID == clientID {
			insights = append(insights, insight)
		}
	}
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].Order != insights[j].Order {
			return insights[i].Order < insights[j].Order
		}
		return insights[i].ID < insights[j].ID
	})
	return insights
}

// Board returns a client's opportunity board: every canonical stage mapped to
// its cards in stage order.
func (s *Service) Board(clientID string) map[Stage][]Opportunity {
	board := make(map[Stage][]Opportunity, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		board[stage] = []Opportunity{}
	}
	for _, opp := range s.store.ListOpportunities() {
		if opp.ClientID != clientID {
			continue
		}
		board[opp.Stage] = append(board[opp.Stage], opp)
	}
	for stage, cards := range board {
		sort.Slice(cards, func(i, j int) bool {
			if cards[i].StageOrder != cards[j].StageOrder {
				return cards[i].StageOrder < cards[j].StageOrder
			}
			return cards[i].ID < cards[j].ID
		})
		board[stage] = cards
	}
	return board
}

// PhaseHealth computes the 0-100 health score of a phase from its struggles,
// its board cards, and the jobs placed on it.
func (s *Service) PhaseHealth(phaseID string) (int, error) {
	phase, ok := s.store.GetPhase(phaseID)
	if !ok {
		return 0, ErrNotFound{Entity: EntityPhase, ID: phaseID}
	}
	opps := []Opportunity{}
	for _, opp := range s.store.ListOpportunities() {
		if opp.PhaseID == phaseID {
			opps = append(opps, opp)
		}
	}
	jobs := []Job{}
	for _, jobID := range phase.JobIDs {
		if job, ok := s.store.GetJob(jobID); ok {
			jobs = append(jobs, job)
		}
	}
	return domain.HealthScore(phase, opps, jobs), nil
}

// JobsForInsight returns the jobs that link the given insight.
func (s *Service) JobsForInsight(insightID string) []Job {
	var jobs []Job
	for _, job := range s.store.ListJobs() {
		for _, id := range job.InsightIDs {
			if id == insightID {
				jobs = append(jobs, job)
				break
			}
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// OpportunitiesLinkedToJob returns the board cards that link the given job.
func (s *Service) OpportunitiesLinkedToJob(jobID string) []Opportunity {
	var opps []Opportunity
	for _, opp := range s.store.ListOpportunities() {
		for _, id := range opp.LinkedJobIDs {
			if id == jobID {
				opps = append(opps, opp)
				break
			}
		}
	}
	sort.Slice(opps, func(i, j int) bool { return opps[i].ID < opps[j].ID })
	return opps
}

// PhasesForJob returns the phases a job is placed on.
func (s *Service) PhasesForJob(jobID string) []Phase {
	var phases []Phase
	for _, phase := range s.store.ListPhases() {
		for _, id := range phase.JobIDs {
			if id == jobID {
				phases = append(phases, phase)
				break
			}
		}
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i].ID < phases[j].ID })
	return phases
}
