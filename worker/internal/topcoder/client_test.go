package topcoder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/worker/internal/config"
)

const notFinishedMsg = "You cannot view the results because the challenge is not yet finished or was cancelled."

const challengeList = `{
  "total": 3,
  "data": [
    {"challengeId": 1, "status": "Active", "registrationStartDate": "2015-10-20T09:00:00.000-0400",
     "challengeName": "Swiftoberfest: build a tvOS app", "challengeCommunity": "develop", "prize": [500]},
    {"challengeId": 2, "status": "Active", "registrationStartDate": "2015-10-21T09:00:00.000-0400",
     "challengeName": "Unrelated Java task", "challengeCommunity": "develop"},
    {"challengeId": 3, "status": "Active", "registrationStartDate": "2015-10-22T09:00:00.000-0400",
     "challengeName": "Icon design [SWIFTOBERFEST]", "challengeCommunity": "design"}
  ]
}`

func testConfig(base string) config.TopcoderConfig {
	return config.TopcoderConfig{
		ChallengeURL: base + "/challenges/active",
		Filter: config.ChallengeFilter{
			PageIndex:    1,
			PageSize:     10,
			Review:       "COMMUNITY,INTERNAL",
			SortColumn:   "submissionEndDate",
			SortOrder:    "desc",
			Technologies: "iOS,SWIFT,tvOS",
		},
		ResultURLs: map[string]string{
			"develop": base + "/develop/result/",
			"design":  base + "/design/result/",
		},
		NoResultsMessage: notFinishedMsg,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWithHTTPClient(testConfig(srv.URL), srv.Client())
}

func TestFetchCandidateChallenges_FiltersByKeyword(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(challengeList))
	})

	got, err := c.FetchCandidateChallenges(context.Background(), "swiftoberfest")
	if err != nil {
		t.Fatalf("FetchCandidateChallenges() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d challenges, want 2: %+v", len(got), got)
	}
	if got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("ids = [%d %d], want [1 3]", got[0].ID, got[1].ID)
	}
	if got[1].Community != "design" {
		t.Errorf("community = %q, want design", got[1].Community)
	}
	if got[0].RegistrationStartDate != "2015-10-20T09:00:00.000-0400" {
		t.Errorf("registration date not kept verbatim: %q", got[0].RegistrationStartDate)
	}

	for _, want := range []string{"pageIndex=1", "pageSize=10", "sortColumn=submissionEndDate", "sortOrder=desc", "technologies=iOS%2CSWIFT%2CtvOS"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestFetchCandidateChallenges_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"missing data", http.StatusOK, `{"total": 0}`},
		{"malformed", http.StatusOK, `{"data": [`},
		{"record without name", http.StatusOK, `{"data": [{"challengeId": 9}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.FetchCandidateChallenges(context.Background(), "x")
			if !errors.Is(err, apperror.ErrUpstream) {
				t.Errorf("error = %v, want ErrUpstream", err)
			}
		})
	}
}

func TestFetchCandidateChallenges_EmptyData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	})
	got, err := c.FetchCandidateChallenges(context.Background(), "x")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d challenges, want 0", len(got))
	}
}

func TestFetchCandidateChallenges_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(testConfig(url), time.Second)
	_, err := c.FetchCandidateChallenges(context.Background(), "x")
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestFetchResults(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{
		  "challengeEndDate": "2015-10-15T12:00:00.000-0400",
		  "results": [
		    {"handle": "alice", "placement": 1, "finalScore": 95.5},
		    {"handle": "bob", "placement": 2, "finalScore": 60}
		  ]
		}`))
	})

	res, err := c.FetchResults(context.Background(), 42, "develop")
	if err != nil {
		t.Fatalf("FetchResults() error = %v", err)
	}
	if gotPath != "/develop/result/42" {
		t.Errorf("path = %q, want /develop/result/42", gotPath)
	}
	if res.ChallengeID != 42 {
		t.Errorf("ChallengeID = %d", res.ChallengeID)
	}
	want := time.Date(2015, 10, 15, 16, 0, 0, 0, time.UTC)
	if !res.EndDate.Equal(want) {
		t.Errorf("EndDate = %v, want %v", res.EndDate, want)
	}
	if len(res.Placements) != 2 || res.Placements[0].Handle != "alice" || res.Placements[0].FinalScore != 95.5 {
		t.Errorf("Placements = %+v", res.Placements)
	}
}

func TestFetchResults_NotFinishedIsAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"name": "Bad Request", "value": 400, "details": "` + notFinishedMsg + `"}}`))
	})
	res, err := c.FetchResults(context.Background(), 7, "develop")
	if err != nil {
		t.Fatalf("error = %v, want nil", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestFetchResults_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"other error detail", http.StatusBadRequest, `{"error": {"details": "Challenge not found"}}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"missing results", http.StatusOK, `{"challengeEndDate": "2015-10-15"}`},
		{"missing end date", http.StatusOK, `{"results": []}`},
		{"bad end date", http.StatusOK, `{"challengeEndDate": "last tuesday", "results": []}`},
		{"malformed", http.StatusOK, `{"results": [`},
		{"missing placement", http.StatusOK, `{"challengeEndDate": "2015-10-15", "results": [{"handle": "a", "finalScore": 90}]}`},
		{"null placement", http.StatusOK, `{"challengeEndDate": "2015-10-15", "results": [{"handle": "b", "placement": null, "finalScore": 90}]}`},
		{"non-positive placement", http.StatusOK, `{"challengeEndDate": "2015-10-15", "results": [{"handle": "c", "placement": -2, "finalScore": 90}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.FetchResults(context.Background(), 1, "develop")
			if !errors.Is(err, apperror.ErrUpstream) {
				t.Errorf("error = %v, want ErrUpstream", err)
			}
		})
	}
}

func TestResultURL(t *testing.T) {
	c := NewWithHTTPClient(testConfig("http://tc"), http.DefaultClient)
	tests := []struct {
		community string
		want      string
	}{
		{"develop", "http://tc/develop/result/5"},
		{"design", "http://tc/design/result/5"},
		{"", "http://tc/design/result/5"},
		{"data", "http://tc/design/result/5"},
	}
	for _, tc := range tests {
		if got := c.ResultURL(5, tc.community); got != tc.want {
			t.Errorf("ResultURL(5, %q) = %q, want %q", tc.community, got, tc.want)
		}
	}
}

func TestParseEndDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2015-10-15T12:00:00Z", time.Date(2015, 10, 15, 12, 0, 0, 0, time.UTC)},
		{"2015-10-15T12:00:00.000-0400", time.Date(2015, 10, 15, 16, 0, 0, 0, time.UTC)},
		{"2015-10-05T09:23+0000", time.Date(2015, 10, 5, 9, 23, 0, 0, time.UTC)},
		{"2015-12-01", time.Date(2015, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := ParseEndDate(tc.in)
		if err != nil {
			t.Errorf("ParseEndDate(%q) error = %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseEndDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseEndDate(""); err == nil {
		t.Error("ParseEndDate(\"\"): expected error")
	}
}

func TestMatchesKeyword(t *testing.T) {
	tests := []struct {
		name, keyword string
		want          bool
	}{
		{"Swiftoberfest app", "swiftoberfest", true},
		{"[SWIFTOBERFEST] icons", "SwiftOberFest", true},
		{"Swift app", "swiftoberfest", false},
		{"", "swiftoberfest", false},
	}
	for _, tc := range tests {
		if got := MatchesKeyword(tc.name, tc.keyword); got != tc.want {
			t.Errorf("MatchesKeyword(%q, %q) = %v, want %v", tc.name, tc.keyword, got, tc.want)
		}
	}
}
