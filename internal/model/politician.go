package model

import "time"

// PoliticianStatus classifies a politician's relationship to office.
type PoliticianStatus string

const (
	PoliticianIncumbent PoliticianStatus = "incumbent"
	PoliticianActive    PoliticianStatus = "politician"
	PoliticianPotential PoliticianStatus = "potential"
	PoliticianFormer    PoliticianStatus = "former"
)

// CandidateStatus is the lifecycle of one person's participation in one election.
type CandidateStatus string

const (
	CandidateRumored   CandidateStatus = "rumored"
	CandidateLikely    CandidateStatus = "likely"
	CandidateConfirmed CandidateStatus = "confirmed"
	CandidateElected   CandidateStatus = "elected"
	CandidateDefeated  CandidateStatus = "defeated"
)

// Valid reports whether s is a known candidate status.
func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidateRumored, CandidateLikely, CandidateConfirmed, CandidateElected, CandidateDefeated:
		return true
	}
	return false
}

// Politician is a person tracked across elections.
type Politician struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Party           string           `json:"party"`
	Status          PoliticianStatus `json:"status"`
	Position        string           `json:"position,omitempty"`
	CurrentPosition string           `json:"current_position,omitempty"`
	Region          string           `json:"region,omitempty"`
	SubRegion       string           `json:"sub_region,omitempty"`
	Village         string           `json:"village,omitempty"`
	Bio             string           `json:"bio,omitempty"`
	Education       []string         `json:"education,omitempty"`
	Experience      []string         `json:"experience,omitempty"`
	EducationLevel  string           `json:"education_level,omitempty"`
	BirthYear       *int             `json:"birth_year,omitempty"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	Slogan          string           `json:"slogan,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ElectionResult records the outcome of a participation once known.
type ElectionResult string

const (
	ResultElected    ElectionResult = "elected"
	ResultNotElected ElectionResult = "not_elected"
)

// Participation links one politician to one election. At most one row may
// exist per (politician, election) pair.
type Participation struct {
	ID              string          `json:"id"`
	PoliticianID    string          `json:"politician_id"`
	ElectionID      string          `json:"election_id"`
	Position        string          `json:"position,omitempty"`
	Slogan          string          `json:"slogan,omitempty"`
	ElectionType    string          `json:"election_type,omitempty"`
	Region          string          `json:"region,omitempty"`
	CandidateStatus CandidateStatus `json:"candidate_status"`
	SourceNote      string          `json:"source_note,omitempty"`
	Votes           *int            `json:"votes,omitempty"`
	ElectionResult  ElectionResult  `json:"election_result,omitempty"`
	Verified        bool            `json:"verified"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CandidateRow is a politician joined with one of its participations, as
// returned by candidate queries.
type CandidateRow struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Party           string          `json:"party"`
	Position        string          `json:"position"`
	Region          string          `json:"region"`
	CurrentPosition string          `json:"current_position"`
	CandidateStatus CandidateStatus `json:"candidate_status"`
	Verified        bool            `json:"verified"`
	ElectionID      string          `json:"election_id"`
}

// PoliticianPatch carries the profile fields an update may change. Nil
// fields are left untouched.
type PoliticianPatch struct {
	Bio             *string
	Experience      []string
	Education       []string
	EducationLevel  *string
	BirthYear       *int
	AvatarURL       *string
	Slogan          *string
	CurrentPosition *string
}

// Fields lists the column names the patch sets, in a stable order.
func (p PoliticianPatch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Bio != nil, "bio")
	add(p.Experience != nil, "experience")
	add(p.Education != nil, "education")
	add(p.EducationLevel != nil, "education_level")
	add(p.BirthYear != nil, "birth_year")
	add(p.AvatarURL != nil, "avatar_url")
	add(p.Slogan != nil, "slogan")
	add(p.CurrentPosition != nil, "current_position")
	return out
}

// UserProfile is the slice of an account the service cares about.
type UserProfile struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"is_admin"`
}
