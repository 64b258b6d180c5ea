package api

import (
	"net/http"
	"strings"

	"github.com/sells-group/policy-tracker/internal/model"
)

// loadState makes sure reference data is in memory. It reloads after an
// invalidation.
func (s *Server) loadState(w http.ResponseWriter, r *http.Request) bool {
	if err := s.state.Init(r.Context()); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

type electionsResponse struct {
	Elections      []model.Election `json:"elections"`
	ActiveElection *model.Election  `json:"active_election,omitempty"`
}

func (s *Server) handleElections(w http.ResponseWriter, r *http.Request) {
	if !s.loadState(w, r) {
		return
	}
	els := s.state.Elections()
	if els == nil {
		els = []model.Election{}
	}
	ok(w, electionsResponse{Elections: els, ActiveElection: s.state.ActiveElection(s.now())})
}

type politiciansResponse struct {
	Count       int                `json:"count"`
	Politicians []model.Politician `json:"politicians"`
}

// handlePoliticians lists politicians, optionally narrowed by ?region= and
// ?q= (name substring).
func (s *Server) handlePoliticians(w http.ResponseWriter, r *http.Request) {
	if !s.loadState(w, r) {
		return
	}
	region := strings.TrimSpace(r.URL.Query().Get("region"))
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	out := []model.Politician{}
	for _, p := range s.state.Politicians() {
		if region != "" && p.Region != region {
			continue
		}
		if q != "" && !strings.Contains(p.Name, q) {
			continue
		}
		out = append(out, p)
	}
	ok(w, politiciansResponse{Count: len(out), Politicians: out})
}

type policiesResponse struct {
	Count    int            `json:"count"`
	Policies []model.Policy `json:"policies"`
}

// handlePolicies lists policies, optionally narrowed by ?politician_id=,
// ?category= and ?status=.
func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if !s.loadState(w, r) {
		return
	}
	query := r.URL.Query()
	politicianID := strings.TrimSpace(query.Get("politician_id"))
	category := strings.TrimSpace(query.Get("category"))
	status := model.PolicyStatus(strings.TrimSpace(query.Get("status")))

	out := []model.Policy{}
	for _, p := range s.state.Policies() {
		switch {
		case politicianID != "" && p.PoliticianID != politicianID:
		case category != "" && p.Category != category:
		case status != "" && p.Status != status:
		default:
			out = append(out, p)
		}
	}
	ok(w, policiesResponse{Count: len(out), Policies: out})
}
