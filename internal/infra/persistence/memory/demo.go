package memory

import (
	"time"

	"journeycore/pkg/domain"
)

// demoSeedTime keeps the demo snapshot byte-stable across loads.
var demoSeedTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func demoBase(id string) domain.Base {
	return domain.Base{ID: id, CreatedAt: demoSeedTime, UpdatedAt: demoSeedTime}
}

// demoSnapshot returns the seeded demo workspace: one client with a single
// onboarding journey, a handful of jobs and insights, and a small kanban
// board. Ids are fixed so repeated substitution is idempotent.
func demoSnapshot() Snapshot {
	journey := Journey{
		Base:      demoBase("demo-journey"),
		ProjectID: "demo-project",
		Name:      "New customer onboarding",
	}
	journey.RowOrder = domain.OrderedRows(journey)

	phases := map[string]Phase{
		"demo-phase-discover": {
			Base:            demoBase("demo-phase-discover"),
			JourneyID:       "demo-journey",
			Name:            "Discover",
			Order:           0,
			Description:     "Prospect researches providers and compares offers.",
			CustomerActions: "Reads reviews\nRequests a quote",
			CustomerStruggles: `[{"text":"Pricing pages are hard to compare","tag":"High"}]`,
			JobIDs:            []string{"demo-job-compare"},
		},
		"demo-phase-signup": {
			Base:              demoBase("demo-phase-signup"),
			JourneyID:         "demo-journey",
			Name:              "Sign up",
			Order:             1,
			Description:       "Prospect creates an account and verifies identity.",
			CustomerStruggles: `[{"text":"Verification takes more than a day","tag":"High"}]`,
			InternalStruggles: `[{"text":"Manual document checks","tag":"Medium"}]`,
			JobIDs:            []string{"demo-job-start"},
		},
		"demo-phase-first-use": {
			Base:        demoBase("demo-phase-first-use"),
			JourneyID:   "demo-journey",
			Name:        "First use",
			Order:       2,
			Description: "Customer completes their first order.",
			JobIDs:      []string{"demo-job-confidence"},
		},
	}

	return Snapshot{
		Clients: map[string]Client{
			"demo-client": {
				Base:        demoBase("demo-client"),
				Name:        "Demo Workspace",
				Description: "Seeded example data",
			},
		},
		Projects: map[string]Project{
			"demo-project": {
				Base:     demoBase("demo-project"),
				ClientID: "demo-client",
				Name:     "Onboarding experience",
			},
		},
		Journeys: map[string]Journey{"demo-journey": journey},
		Phases:   phases,
		Jobs: map[string]Job{
			"demo-job-compare": {
				Base:       demoBase("demo-job-compare"),
				ClientID:   "demo-client",
				Name:       "Compare offers quickly",
				Tag:        domain.JobFunctional,
				Priority:   domain.LevelHigh,
				InsightIDs: []string{"demo-insight-pricing"},
			},
			"demo-job-start": {
				Base:       demoBase("demo-job-start"),
				ClientID:   "demo-client",
				Name:       "Get started without paperwork",
				Tag:        domain.JobFunctional,
				Priority:   domain.LevelMedium,
				InsightIDs: []string{},
			},
			"demo-job-confidence": {
				Base:       demoBase("demo-job-confidence"),
				ClientID:   "demo-client",
				Name:       "Feel confident the order went through",
				Tag:        domain.JobEmotional,
				Priority:   domain.LevelMedium,
				InsightIDs: []string{},
			},
		},
		Insights: map[string]Insight{
			"demo-insight-pricing": {
				Base:        demoBase("demo-insight-pricing"),
				ClientID:    "demo-client",
				Title:       "Users abandon at the pricing table",
				Description: "Session recordings show repeated tab switching between plans.",
				Priority:    domain.LevelHigh,
				Order:       0,
			},
		},
		Opportunities: map[string]Opportunity{
			"demo-opp-pricing": {
				Base:         demoBase("demo-opp-pricing"),
				ClientID:     "demo-client",
				ProjectID:    "demo-project",
				JourneyID:    "demo-journey",
				PhaseID:      "demo-phase-discover",
				Name:         "Side-by-side plan comparison",
				Tag:          domain.LevelHigh,
				Stage:        domain.StageInDiscovery,
				StageOrder:   0,
				LinkedJobIDs: []string{"demo-job-compare"},
			},
			"demo-opp-verification": {
				Base:         demoBase("demo-opp-verification"),
				ClientID:     "demo-client",
				ProjectID:    "demo-project",
				JourneyID:    "demo-journey",
				PhaseID:      "demo-phase-signup",
				Name:         "Automate identity verification",
				Tag:          domain.LevelHigh,
				Stage:        domain.StageBacklog,
				StageOrder:   0,
				LinkedJobIDs: []string{"demo-job-start"},
			},
		},
		Comments: map[string]CellComment{
			domain.CommentKey("demo-phase-signup", domain.RowCustomerStruggles): {
				Text:    "Compliance confirmed we can drop the utility bill requirement.",
				Replies: []string{},
			},
		},
	}
}
