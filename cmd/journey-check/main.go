// Command journey-check opens the configured journeycore store, loads the
// workspace (which runs snapshot migration and normalization), and reports
// per-client collection counts plus a referential-integrity scan. It exits
// nonzero when dangling references or malformed records are found.
//
// Storage selection follows the JOURNEYCORE_STORAGE_* environment variables
// documented on core.OpenPersistentStore.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"journeycore/internal/core"
	"journeycore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("journey-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var showHealth bool
	fs.BoolVar(&showHealth, "health", false, "print per-phase health scores")
	var clientFilter string
	fs.StringVar(&clientFilter, "client", "", "restrict the report to one client id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, err := core.OpenPersistentStore(core.NewRulesEngine())
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer func() {
		if closer, ok := store.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	rep := buildReport(store, clientFilter)
	rep.write(stdout, showHealth)
	if len(rep.issues) > 0 {
		fmt.Fprintf(stderr, "journey-check: %d integrity issue(s) found\n", len(rep.issues))
		return 1
	}
	fmt.Fprintln(stdout, "Workspace integrity check passed.")
	return 0
}

type clientCounts struct {
	client        core.Client
	projects      int
	journeys      int
	phases        int
	jobs          int
	insights      int
	opportunities int
}

type phaseHealth struct {
	phase core.Phase
	score int
}

type report struct {
	clients []clientCounts
	health  []phaseHealth
	issues  []string
}

func (r *report) issue(format string, args ...any) {
	r.issues = append(r.issues, fmt.Sprintf(format, args...))
}

func buildReport(store core.PersistentStore, clientFilter string) *report {
	rep := &report{}

	clients := store.ListClients()
	clientIndex := make(map[string]core.Client, len(clients))
	for _, c := range clients {
		clientIndex[c.ID] = c
	}
	if clientFilter != "" {
		if _, ok := clientIndex[clientFilter]; !ok {
			rep.issue("client %s not found", clientFilter)
			return rep
		}
	}
	inScope := func(clientID string) bool {
		return clientFilter == "" || clientID == clientFilter
	}

	counts := make(map[string]*clientCounts, len(clients))
	for _, c := range clients {
		counts[c.ID] = &clientCounts{client: c}
	}
	countFor := func(clientID string) *clientCounts {
		return counts[clientID]
	}

	projectClient := make(map[string]string)
	for _, project := range store.ListProjects() {
		if _, ok := clientIndex[project.ClientID]; !ok {
			rep.issue("project %s references missing client %s", project.ID, project.ClientID)
			continue
		}
		projectClient[project.ID] = project.ClientID
		if c := countFor(project.ClientID); c != nil {
			c.projects++
		}
	}

	journeyClient := make(map[string]string)
	journeyIndex := make(map[string]core.Journey)
	for _, journey := range store.ListJourneys() {
		clientID, ok := projectClient[journey.ProjectID]
		if !ok {
			rep.issue("journey %s references missing project %s", journey.ID, journey.ProjectID)
			continue
		}
		journeyClient[journey.ID] = clientID
		journeyIndex[journey.ID] = journey
		if c := countFor(clientID); c != nil {
			c.journeys++
		}
		if !rowOrderMatches(journey) {
			rep.issue("journey %s row order diverges from canonical layout", journey.ID)
		}
	}

	jobIndex := make(map[string]core.Job)
	for _, job := range store.ListJobs() {
		if _, ok := clientIndex[job.ClientID]; !ok {
			rep.issue("job %s references missing client %s", job.ID, job.ClientID)
			continue
		}
		jobIndex[job.ID] = job
		if c := countFor(job.ClientID); c != nil {
			c.jobs++
		}
	}

	insightIndex := make(map[string]core.Insight)
	for _, insight := range store.ListInsights() {
		if _, ok := clientIndex[insight.ClientID]; !ok {
			rep.issue("insight %s references missing client %s", insight.ID, insight.ClientID)
			continue
		}
		insightIndex[insight.ID] = insight
		if c := countFor(insight.ClientID); c != nil {
			c.insights++
		}
	}
	for id, job := range jobIndex {
		for _, insightID := range job.InsightIDs {
			if _, ok := insightIndex[insightID]; !ok {
				rep.issue("job %s links missing insight %s", id, insightID)
			}
		}
	}

	phaseIndex := make(map[string]core.Phase)
	var phases []core.Phase
	for _, phase := range store.ListPhases() {
		clientID, ok := journeyClient[phase.JourneyID]
		if !ok {
			rep.issue("phase %s references missing journey %s", phase.ID, phase.JourneyID)
			continue
		}
		phaseIndex[phase.ID] = phase
		phases = append(phases, phase)
		if c := countFor(clientID); c != nil {
			c.phases++
		}
		for _, jobID := range phase.JobIDs {
			if _, ok := jobIndex[jobID]; !ok {
				rep.issue("phase %s places missing job %s", phase.ID, jobID)
			}
		}
	}

	oppsByPhase := make(map[string][]core.Opportunity)
	for _, opp := range store.ListOpportunities() {
		if _, ok := clientIndex[opp.ClientID]; !ok {
			rep.issue("opportunity %s references missing client %s", opp.ID, opp.ClientID)
			continue
		}
		if c := countFor(opp.ClientID); c != nil {
			c.opportunities++
		}
		if !opp.Stage.Valid() {
			rep.issue("opportunity %s carries unknown stage %q", opp.ID, opp.Stage)
		}
		if opp.PhaseID != "" {
			if _, ok := phaseIndex[opp.PhaseID]; !ok {
				rep.issue("opportunity %s references missing phase %s", opp.ID, opp.PhaseID)
			} else {
				oppsByPhase[opp.PhaseID] = append(oppsByPhase[opp.PhaseID], opp)
			}
		}
		for _, jobID := range opp.LinkedJobIDs {
			if _, ok := jobIndex[jobID]; !ok {
				rep.issue("opportunity %s links missing job %s", opp.ID, jobID)
			}
		}
	}

	for key := range store.ListCellComments() {
		phaseID, rowKey, ok := domain.SplitCommentKey(key)
		if !ok {
			rep.issue("comment key %q is malformed", key)
			continue
		}
		phase, ok := phaseIndex[phaseID]
		if !ok {
			rep.issue("comment %q references missing phase %s", key, phaseID)
			continue
		}
		if journey, ok := journeyIndex[phase.JourneyID]; ok && !rowKnown(journey, rowKey) {
			rep.issue("comment %q references unknown row %s", key, rowKey)
		}
	}

	for _, c := range counts {
		if inScope(c.client.ID) {
			rep.clients = append(rep.clients, *c)
		}
	}
	sort.Slice(rep.clients, func(i, j int) bool {
		return rep.clients[i].client.Name < rep.clients[j].client.Name
	})

	sort.Slice(phases, func(i, j int) bool {
		if phases[i].JourneyID != phases[j].JourneyID {
			return phases[i].JourneyID < phases[j].JourneyID
		}
		return phases[i].Order < phases[j].Order
	})
	for _, phase := range phases {
		if !inScope(journeyClient[phase.JourneyID]) {
			continue
		}
		var jobs []core.Job
		for _, jobID := range phase.JobIDs {
			if job, ok := jobIndex[jobID]; ok {
				jobs = append(jobs, job)
			}
		}
		rep.health = append(rep.health, phaseHealth{
			phase: phase,
			score: domain.HealthScore(phase, oppsByPhase[phase.ID], jobs),
		})
	}

	return rep
}

// rowOrderMatches reports whether the persisted row order already equals the
// canonical layout. The normalizer repairs divergent orders at load time, so
// a mismatch here means the store was written by an older build.
func rowOrderMatches(journey core.Journey) bool {
	want := domain.OrderedRows(journey)
	if len(journey.RowOrder) != len(want) {
		return false
	}
	for i, key := range want {
		if journey.RowOrder[i] != key {
			return false
		}
	}
	return true
}

func rowKnown(journey core.Journey, rowKey string) bool {
	for _, key := range domain.OrderedRows(journey) {
		if key == rowKey {
			return true
		}
	}
	return false
}

func (r *report) write(w io.Writer, showHealth bool) {
	for _, c := range r.clients {
		fmt.Fprintf(w, "client %s (%s): %d projects, %d journeys, %d phases, %d jobs, %d insights, %d opportunities\n",
			c.client.Name, c.client.ID, c.projects, c.journeys, c.phases, c.jobs, c.insights, c.opportunities)
	}
	if showHealth {
		for _, h := range r.health {
			fmt.Fprintf(w, "phase %s (%s): health %d\n", h.phase.Name, h.phase.ID, h.score)
		}
	}
	for _, issue := range r.issues {
		fmt.Fprintf(w, "issue: %s\n", issue)
	}
}
