package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ragstream "github.com/TharushaKula/RAG-agent-sub001"
	"github.com/TharushaKula/RAG-agent-sub001/store"
)

// collectEmits folds all analysis patches into one map and keeps the status
// lines, the way a consuming session would accumulate them.
func collectEmits(t *testing.T) (EmitFunc, *[]string, map[string]any) {
	t.Helper()
	statuses := &[]string{}
	merged := map[string]any{}
	emit := func(event string, data any) error {
		switch event {
		case ragstream.WireStatus:
			*statuses = append(*statuses, data.(string))
		case ragstream.WireAnalysis:
			b, err := json.Marshal(data)
			if err != nil {
				t.Fatalf("marshal patch: %v", err)
			}
			var patch map[string]any
			if err := json.Unmarshal(b, &patch); err != nil {
				t.Fatalf("unmarshal patch: %v", err)
			}
			for k, v := range patch {
				merged[k] = v
			}
		}
		return nil
	}
	return emit, statuses, merged
}

func asInt(t *testing.T, m map[string]any, key string) int {
	t.Helper()
	v, ok := m[key].(float64)
	if !ok {
		t.Fatalf("key %q missing or not a number: %v", key, m[key])
	}
	return int(v)
}

func TestGitHubAnalyzerGraphQL(t *testing.T) {
	graphql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"user":{
			"repositories":{"totalCount":12,"nodes":[
				{"primaryLanguage":{"name":"Go"}},
				{"primaryLanguage":{"name":"Go"}},
				{"primaryLanguage":{"name":"Python"}},
				{"primaryLanguage":null}
			]},
			"contributionsCollection":{
				"totalCommitContributions":150,
				"totalIssueContributions":10,
				"totalPullRequestContributions":30,
				"totalPullRequestReviewContributions":5,
				"contributionCalendar":{
					"totalContributions":400,
					"weeks":[{"contributionDays":[
						{"date":"2026-08-26","contributionCount":2},
						{"date":"2026-08-27","contributionCount":3},
						{"date":"2026-08-28","contributionCount":0},
						{"date":"2026-08-29","contributionCount":5}
					]}]
				}
			}
		}}}`))
	}))
	defer graphql.Close()

	mem := store.NewMemory()
	g := &GitHubAnalyzer{
		Token:           "tok",
		Store:           mem,
		GraphQLEndpoint: graphql.URL,
	}
	emit, statuses, merged := collectEmits(t)
	if err := g.Analyze(context.Background(), "https://github.com/octocat", emit); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if got := asInt(t, merged, "repos"); got != 12 {
		t.Errorf("repos = %d", got)
	}
	if got := asInt(t, merged, "totalCommits"); got != 150 {
		t.Errorf("totalCommits = %d", got)
	}
	if merged["isExact"] != true {
		t.Errorf("isExact = %v", merged["isExact"])
	}
	// Activity phase computed from the GraphQL calendar.
	if got := asInt(t, merged, "longestStreak"); got != 2 {
		t.Errorf("longestStreak = %d", got)
	}
	if got := asInt(t, merged, "currentStreak"); got < 1 {
		t.Errorf("currentStreak = %d", got)
	}
	if got := asInt(t, merged, "activeDays"); got != 3 {
		t.Errorf("activeDays = %d", got)
	}
	if _, ok := merged["yearlyContributions"]; !ok {
		t.Error("yearlyContributions patch missing")
	}
	if merged["techFocus"] != "Go" {
		t.Errorf("techFocus = %v", merged["techFocus"])
	}
	if insights, ok := merged["insights"].([]any); !ok || len(insights) == 0 {
		t.Errorf("insights = %v", merged["insights"])
	}
	if len(*statuses) < 3 {
		t.Errorf("statuses = %v", *statuses)
	}

	// The summary landed in the context store as a profile document.
	cat, err := mem.ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cat.Profile) == 0 {
		t.Fatal("no profile document ingested")
	}
	if cat.Profile[0].Source != "https://github.com/octocat" {
		t.Errorf("profile source = %q", cat.Profile[0].Source)
	}
	docs, err := mem.GetDocuments(context.Background(), []string{cat.Profile[0].ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(docs) != 1 || !strings.Contains(docs[0].Content, "Total Repositories: 12") {
		t.Errorf("summary document = %+v", docs)
	}
}

func TestGitHubAnalyzerTokenlessScrape(t *testing.T) {
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/octocat/contributions" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<h2 class="f4">1,234 contributions in the last year</h2>
<table><tr>
<td class="ContributionCalendar-day" data-date="2026-08-27" data-count="3"></td>
<td class="ContributionCalendar-day" data-date="2026-08-28" data-count="0"></td>
<td class="ContributionCalendar-day" data-date="2026-08-29" data-count="2"></td>
</tr></table>`))
	}))
	defer pages.Close()

	mem := store.NewMemory()
	g := &GitHubAnalyzer{Store: mem, BaseURL: pages.URL}
	emit, statuses, merged := collectEmits(t)
	if err := g.Analyze(context.Background(), "https://github.com/octocat", emit); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if got := asInt(t, merged, "totalContributions"); got != 1234 {
		t.Errorf("totalContributions = %d", got)
	}
	if merged["isExact"] != false {
		t.Errorf("isExact = %v, scraped counts must stay inexact", merged["isExact"])
	}
	if got := asInt(t, merged, "activeDays"); got != 2 {
		t.Errorf("activeDays = %d", got)
	}
	if got := asInt(t, merged, "currentStreak"); got < 1 {
		t.Errorf("currentStreak = %d", got)
	}
	// GraphQL-only fields never appear on this path.
	if _, ok := merged["totalCommits"]; ok {
		t.Error("totalCommits must not be emitted without the API")
	}
	fallback := false
	for _, s := range *statuses {
		if strings.Contains(s, "No API token") {
			fallback = true
		}
	}
	if !fallback {
		t.Errorf("missing the fallback status line: %v", *statuses)
	}
	cat, err := mem.ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cat.Profile) == 0 {
		t.Fatal("no profile document ingested on the scrape path")
	}
}

func TestActivityFromDays(t *testing.T) {
	days := []contributionDay{
		{Date: "2025-12-30", Count: 4},
		{Date: "2025-12-31", Count: 2},
		{Date: "2026-01-01", Count: 0},
		{Date: "2026-01-02", Count: 1},
		{Date: "2026-01-03", Count: 1},
		{Date: "2026-01-04", Count: 1},
	}

	t.Run("streaks and active days", func(t *testing.T) {
		act := activityFromDays(days, "2026-01-05")
		if act.longestStreak != 3 {
			t.Errorf("longestStreak = %d", act.longestStreak)
		}
		if act.currentStreak != 3 {
			t.Errorf("currentStreak = %d", act.currentStreak)
		}
		if act.activeDays != 5 {
			t.Errorf("activeDays = %d", act.activeDays)
		}
	})

	t.Run("yearly totals", func(t *testing.T) {
		act := activityFromDays(days, "2026-01-05")
		want := []ragstream.YearCount{{Year: 2025, Count: 6}, {Year: 2026, Count: 3}}
		if len(act.yearly) != len(want) {
			t.Fatalf("yearly = %+v", act.yearly)
		}
		for i, y := range act.yearly {
			if y != want[i] {
				t.Errorf("yearly[%d] = %+v, want %+v", i, y, want[i])
			}
		}
	})

	t.Run("empty today does not break the streak", func(t *testing.T) {
		withToday := append(append([]contributionDay(nil), days...),
			contributionDay{Date: "2026-01-05", Count: 0})
		act := activityFromDays(withToday, "2026-01-05")
		if act.currentStreak != 3 {
			t.Errorf("currentStreak = %d, a zero-count today must be skipped", act.currentStreak)
		}
	})

	t.Run("gap before today ends the streak", func(t *testing.T) {
		withGap := append(append([]contributionDay(nil), days...),
			contributionDay{Date: "2026-01-05", Count: 0})
		act := activityFromDays(withGap, "2026-01-06")
		if act.currentStreak != 0 {
			t.Errorf("currentStreak = %d, a past zero-count day must end it", act.currentStreak)
		}
	})

	t.Run("no days", func(t *testing.T) {
		act := activityFromDays(nil, "2026-01-05")
		if act.currentStreak != 0 || act.longestStreak != 0 || act.activeDays != 0 || act.yearly != nil {
			t.Errorf("activity from no days = %+v", act)
		}
	})
}

func TestTopLanguage(t *testing.T) {
	lang := func(name string) repoNode {
		return repoNode{PrimaryLanguage: &struct {
			Name string `json:"name"`
		}{Name: name}}
	}
	nodes := []repoNode{lang("Go"), lang("Python"), lang("Go"), {}}
	if got := topLanguage(nodes); got != "Go" {
		t.Errorf("topLanguage = %q", got)
	}
	if got := topLanguage(nil); got != "" {
		t.Errorf("topLanguage(nil) = %q", got)
	}
}
