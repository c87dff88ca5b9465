package ragstream

import "github.com/invopop/jsonschema"

// ProfileStats is the known shape of the agent-run analysis payload. The
// analyzer emits it piecewise: each fragment carries a subset of these fields
// and the accumulator merges them key by key. Fields mirror what the profile
// analyzer actually produces, so the set of JSON property names doubles as the
// allow-list for incoming patch keys.
type ProfileStats struct {
	TotalContributions  int         `json:"totalContributions,omitempty"`
	TotalCommits        int         `json:"totalCommits,omitempty"`
	Issues              int         `json:"issues,omitempty"`
	PullRequests        int         `json:"pullRequests,omitempty"`
	Reviews             int         `json:"reviews,omitempty"`
	Repos               int         `json:"repos,omitempty"`
	CurrentStreak       int         `json:"currentStreak,omitempty"`
	LongestStreak       int         `json:"longestStreak,omitempty"`
	ActiveDays          int         `json:"activeDays,omitempty"`
	IsExact             bool        `json:"isExact,omitempty"`
	TechFocus           string      `json:"techFocus,omitempty"`
	Insights            []string    `json:"insights,omitempty"`
	YearlyContributions []YearCount `json:"yearlyContributions,omitempty"`
}

// YearCount is one entry of the yearly contribution history.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// analysisKeys is the set of patch keys the accumulator accepts, derived once
// from the reflected schema of ProfileStats.
var analysisKeys = func() map[string]bool {
	schema := generateSchema[ProfileStats]()
	keys := make(map[string]bool)
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		keys[pair.Key] = true
	}
	return keys
}()
