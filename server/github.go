package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	ragstream "github.com/TharushaKula/RAG-agent-sub001"
	"github.com/TharushaKula/RAG-agent-sub001/store"
)

const (
	defaultGraphQLEndpoint = "https://api.github.com/graphql"
	defaultGitHubBaseURL   = "https://github.com"
)

const contributionsQuery = `
query($username: String!) {
	user(login: $username) {
		repositories(first: 50, ownerAffiliations: OWNER, orderBy: {field: PUSHED_AT, direction: DESC}) {
			totalCount
			nodes { primaryLanguage { name } }
		}
		contributionsCollection {
			totalCommitContributions
			totalIssueContributions
			totalPullRequestContributions
			totalPullRequestReviewContributions
			contributionCalendar {
				totalContributions
				weeks { contributionDays { date contributionCount } }
			}
		}
	}
}`

// GitHubAnalyzer produces an agent-run from a GitHub profile URL. With a
// token it uses the GraphQL contributions API and marks the counts exact;
// without one it degrades to scraping the public contribution calendar.
// Patches are emitted as each phase of data becomes available, so the client
// sees the analysis build up incrementally. When a Store is configured, the
// finished analysis is ingested as a profile document so later chat turns can
// ground on it.
type GitHubAnalyzer struct {
	Token  string
	Store  ContextStore
	Client *http.Client
	Logger *slog.Logger

	// Endpoint overrides for tests; empty means the public GitHub hosts.
	GraphQLEndpoint string
	BaseURL         string
}

var _ Analyzer = (*GitHubAnalyzer)(nil)

// contributionDay is one cell of the contribution calendar, from either the
// GraphQL calendar or the scraped heatmap.
type contributionDay struct {
	Date  string `json:"date"`
	Count int    `json:"contributionCount"`
}

// profileFacts collects the per-phase numbers so the summary can be built
// after all patches are emitted.
type profileFacts struct {
	repos              int
	totalContributions int
	commits            int
	issues             int
	pullRequests       int
	reviews            int
	isExact            bool
	techFocus          string
}

func (g *GitHubAnalyzer) Analyze(ctx context.Context, target string, emit EmitFunc) error {
	username, err := usernameFromURL(target)
	if err != nil {
		return err
	}
	if err := emit(ragstream.WireStatus, "Analyzing profile for "+username); err != nil {
		return err
	}

	var facts profileFacts
	var days []contributionDay

	if g.Token != "" {
		user, err := g.fetchContributions(ctx, username)
		if err != nil {
			return err
		}
		facts.repos = user.Repositories.TotalCount
		facts.techFocus = topLanguage(user.Repositories.Nodes)
		if err := emit(ragstream.WireAnalysis, map[string]any{
			"repos": facts.repos,
		}); err != nil {
			return err
		}

		if err := emit(ragstream.WireStatus, "Fetching contribution activity"); err != nil {
			return err
		}
		cc := user.ContributionsCollection
		facts.totalContributions = cc.ContributionCalendar.TotalContributions
		facts.commits = cc.TotalCommitContributions
		facts.issues = cc.TotalIssueContributions
		facts.pullRequests = cc.TotalPullRequestContributions
		facts.reviews = cc.TotalPullRequestReviewContributions
		facts.isExact = true
		if err := emit(ragstream.WireAnalysis, map[string]any{
			"totalContributions": facts.totalContributions,
			"totalCommits":       facts.commits,
			"issues":             facts.issues,
			"pullRequests":       facts.pullRequests,
			"reviews":            facts.reviews,
			"isExact":            true,
		}); err != nil {
			return err
		}
		for _, week := range cc.ContributionCalendar.Weeks {
			days = append(days, week.ContributionDays...)
		}
	} else {
		if err := emit(ragstream.WireStatus, "No API token configured, reading the public profile"); err != nil {
			return err
		}
		total, scraped, err := g.scrapeContributions(ctx, username)
		if err != nil {
			return err
		}
		facts.totalContributions = total
		days = scraped
		if err := emit(ragstream.WireAnalysis, map[string]any{
			"totalContributions": total,
			"isExact":            false,
		}); err != nil {
			return err
		}
	}

	if err := emit(ragstream.WireStatus, "Computing activity streaks"); err != nil {
		return err
	}
	act := activityFromDays(days, time.Now().Format("2006-01-02"))
	if err := emit(ragstream.WireAnalysis, map[string]any{
		"currentStreak":       act.currentStreak,
		"longestStreak":       act.longestStreak,
		"activeDays":          act.activeDays,
		"yearlyContributions": act.yearly,
	}); err != nil {
		return err
	}

	focus := map[string]any{
		"insights": buildInsights(facts, act),
	}
	if facts.techFocus != "" {
		focus["techFocus"] = facts.techFocus
	}
	if err := emit(ragstream.WireAnalysis, focus); err != nil {
		return err
	}

	if g.Store != nil {
		if err := emit(ragstream.WireStatus, "Saving profile summary to the knowledge base"); err != nil {
			return err
		}
		summary := buildSummary(username, target, facts, act)
		if _, err := g.Store.IngestText(ctx, store.KindProfile, target, "", summary); err != nil {
			return fmt.Errorf("ingest profile summary: %w", err)
		}
	}
	return nil
}

type repoNode struct {
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
}

type githubUser struct {
	Repositories struct {
		TotalCount int        `json:"totalCount"`
		Nodes      []repoNode `json:"nodes"`
	} `json:"repositories"`
	ContributionsCollection struct {
		TotalCommitContributions            int `json:"totalCommitContributions"`
		TotalIssueContributions             int `json:"totalIssueContributions"`
		TotalPullRequestContributions       int `json:"totalPullRequestContributions"`
		TotalPullRequestReviewContributions int `json:"totalPullRequestReviewContributions"`
		ContributionCalendar                struct {
			TotalContributions int `json:"totalContributions"`
			Weeks              []struct {
				ContributionDays []contributionDay `json:"contributionDays"`
			} `json:"weeks"`
		} `json:"contributionCalendar"`
	} `json:"contributionsCollection"`
}

func (g *GitHubAnalyzer) fetchContributions(ctx context.Context, username string) (*githubUser, error) {
	body, err := json.Marshal(map[string]any{
		"query":     contributionsQuery,
		"variables": map[string]string{"username": username},
	})
	if err != nil {
		return nil, err
	}
	endpoint := g.GraphQLEndpoint
	if endpoint == "" {
		endpoint = defaultGraphQLEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("github graphql request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github graphql request: unexpected status %s", resp.Status)
	}

	var decoded struct {
		Data struct {
			User *githubUser `json:"user"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("github graphql: %s", decoded.Errors[0].Message)
	}
	if decoded.Data.User == nil {
		return nil, fmt.Errorf("github user %q not found", username)
	}
	return decoded.Data.User, nil
}

var (
	contribTotalPattern = regexp.MustCompile(`([\d,]+)\s+contributions?`)
	contribDayPattern   = regexp.MustCompile(`<td[^>]*ContributionCalendar-day[^>]*>`)
	dayDatePattern      = regexp.MustCompile(`data-date="(\d{4}-\d{2}-\d{2})"`)
	dayCountPattern     = regexp.MustCompile(`data-count="(\d+)"`)
)

// scrapeContributions reads the public contribution calendar page. It is the
// tokenless degradation path: counts come from the rendered heatmap, so they
// stay marked inexact.
func (g *GitHubAnalyzer) scrapeContributions(ctx context.Context, username string) (int, []contributionDay, error) {
	base := g.BaseURL
	if base == "" {
		base = defaultGitHubBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base+"/users/"+username+"/contributions", nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := g.httpClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch contribution calendar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("fetch contribution calendar: unexpected status %s", resp.Status)
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read contribution calendar: %w", err)
	}

	total := 0
	if m := contribTotalPattern.FindSubmatch(page); m != nil {
		total, _ = strconv.Atoi(strings.ReplaceAll(string(m[1]), ",", ""))
	}
	var days []contributionDay
	for _, tag := range contribDayPattern.FindAll(page, -1) {
		date := dayDatePattern.FindSubmatch(tag)
		if date == nil {
			continue
		}
		count := 0
		if m := dayCountPattern.FindSubmatch(tag); m != nil {
			count, _ = strconv.Atoi(string(m[1]))
		}
		days = append(days, contributionDay{Date: string(date[1]), Count: count})
	}
	return total, days, nil
}

func (g *GitHubAnalyzer) httpClient() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

// activity is what the contribution calendar alone can tell us.
type activity struct {
	currentStreak int
	longestStreak int
	activeDays    int
	yearly        []ragstream.YearCount
}

// activityFromDays computes streaks and active-day counts. The current streak
// counts back from the most recent day, skipping today if it has no
// contributions yet.
func activityFromDays(days []contributionDay, today string) activity {
	sorted := append([]contributionDay(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	var act activity
	temp := 0
	perYear := make(map[int]int)
	for _, d := range sorted {
		if d.Count > 0 {
			temp++
			act.activeDays++
		} else {
			if temp > act.longestStreak {
				act.longestStreak = temp
			}
			temp = 0
		}
		if len(d.Date) >= 4 {
			if year, err := strconv.Atoi(d.Date[:4]); err == nil {
				perYear[year] += d.Count
			}
		}
	}
	if temp > act.longestStreak {
		act.longestStreak = temp
	}

	for i := len(sorted) - 1; i >= 0; i-- {
		d := sorted[i]
		if d.Count > 0 {
			act.currentStreak++
			continue
		}
		if d.Date == today {
			continue
		}
		break
	}

	years := make([]int, 0, len(perYear))
	for year := range perYear {
		years = append(years, year)
	}
	sort.Ints(years)
	for _, year := range years {
		act.yearly = append(act.yearly, ragstream.YearCount{Year: year, Count: perYear[year]})
	}
	return act
}

// topLanguage picks the most frequent primary language across the user's
// recently pushed repositories.
func topLanguage(nodes []repoNode) string {
	counts := make(map[string]int)
	for _, n := range nodes {
		if n.PrimaryLanguage != nil && n.PrimaryLanguage.Name != "" {
			counts[n.PrimaryLanguage.Name]++
		}
	}
	best, bestCount := "", 0
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

func buildInsights(facts profileFacts, act activity) []string {
	insights := []string{
		fmt.Sprintf("Active on %d days over the last year", act.activeDays),
	}
	if act.longestStreak > 0 {
		insights = append(insights, fmt.Sprintf("Longest contribution streak: %d days", act.longestStreak))
	}
	if facts.techFocus != "" {
		insights = append(insights, fmt.Sprintf("Most repositories are written in %s", facts.techFocus))
	}
	return insights
}

// buildSummary renders the analysis as the profile document that gets
// ingested into the context store.
func buildSummary(username, url string, facts profileFacts, act activity) string {
	return strings.TrimSpace(fmt.Sprintf(`
GitHub Profile Analysis for User: %s
Source URL: %s
---
Total Repositories: %d
Total Contributions (Last Year): %d
Detailed Breakdown:
- Commits: %d
- Issues: %d
- PRs: %d
- Reviews: %d
---
Activity Stats:
- Current Streak: %d days
- Longest Streak: %d days
- Active Days: %d days
`, username, url, facts.repos, facts.totalContributions,
		facts.commits, facts.issues, facts.pullRequests, facts.reviews,
		act.currentStreak, act.longestStreak, act.activeDays))
}

func usernameFromURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid profile url: %w", err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	username := segments[len(segments)-1]
	if username == "" {
		return "", errors.New("profile url carries no username")
	}
	return username, nil
}
