package classroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"

	"classroom-sync-service/internal/config"
	syncerrors "classroom-sync-service/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.ClassroomConfig{
		BaseURL:       srv.URL,
		PageSize:      2,
		RetryAttempts: 3,
		RetryDelay:    "1ms",
	}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}))

	return client, srv
}

func TestClient_ListCourses(t *testing.T) {
	t.Run("follows page tokens to completion", func(t *testing.T) {
		pages := map[string]coursesResponse{
			"":   {Courses: []Course{{ID: "c1", Name: "Mathematics"}, {ID: "c2", Name: "Art"}}, NextPageToken: "p2"},
			"p2": {Courses: []Course{{ID: "c3", Name: "History"}}, NextPageToken: "p3"},
			"p3": {Courses: []Course{{ID: "c4", Name: "Science"}}},
		}

		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q, want bearer test-token", got)
			}
			json.NewEncoder(w).Encode(pages[r.URL.Query().Get("pageToken")])
		}))

		courses, err := client.ListCourses(context.Background())
		if err != nil {
			t.Fatalf("ListCourses() error = %v", err)
		}
		if len(courses) != 4 {
			t.Fatalf("got %d courses, want 4", len(courses))
		}
		// Server order is preserved.
		if courses[0].ID != "c1" || courses[3].ID != "c4" {
			t.Errorf("courses out of order: %+v", courses)
		}
	})

	t.Run("retries transient failures then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(coursesResponse{Courses: []Course{{ID: "c1", Name: "Mathematics"}}})
		}))

		courses, err := client.ListCourses(context.Background())
		if err != nil {
			t.Fatalf("ListCourses() error = %v", err)
		}
		if len(courses) != 1 {
			t.Errorf("got %d courses, want 1", len(courses))
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("server calls = %d, want 3", got)
		}
	})

	t.Run("rate limit is retried", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(coursesResponse{})
		}))

		if _, err := client.ListCourses(context.Background()); err != nil {
			t.Fatalf("ListCourses() error = %v", err)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("server calls = %d, want 2", got)
		}
	})

	t.Run("exhausted retries escalate", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := client.ListCourses(context.Background())
		if err == nil {
			t.Fatal("ListCourses() error = nil, want error")
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("server calls = %d, want 3", got)
		}
		if !syncerrors.IsTransient(err) {
			t.Errorf("escalated error should still unwrap to transient, got %v", err)
		}
	})

	t.Run("non-transient failure aborts without retry", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}))

		_, err := client.ListCourses(context.Background())
		if err == nil {
			t.Fatal("ListCourses() error = nil, want error")
		}
		if syncerrors.IsTransient(err) {
			t.Errorf("403 should not be transient: %v", err)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("server calls = %d, want 1", got)
		}
	})
}

func TestClient_ListCourseWork(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/courses/c1/courseWork" {
			t.Errorf("path = %q", r.URL.Path)
		}
		maxPoints := 50.0
		json.NewEncoder(w).Encode(courseWorkResponse{CourseWork: []CourseWork{
			{ID: "a1", Title: "Quiz 1", MaxPoints: &maxPoints, DueDate: &DueDate{Year: 2025, Month: 2, Day: 5}},
			{ID: "a2", Title: "Essay"},
		}})
	}))

	works, err := client.ListCourseWork(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListCourseWork() error = %v", err)
	}
	if len(works) != 2 {
		t.Fatalf("got %d items, want 2", len(works))
	}
	if works[0].MaxPoints == nil || *works[0].MaxPoints != 50 {
		t.Errorf("MaxPoints = %v, want 50", works[0].MaxPoints)
	}
	if works[1].MaxPoints != nil || works[1].DueDate != nil {
		t.Errorf("absent optional fields should decode to nil: %+v", works[1])
	}
}

func TestClient_ListSubmissions(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/courses/c1/courseWork/a1/studentSubmissions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		grade := 42.0
		json.NewEncoder(w).Encode(submissionsResponse{StudentSubmissions: []StudentSubmission{
			{ID: "s1", UserID: "stu1", AssignedGrade: &grade},
			{ID: "s2", UserID: "stu2"},
		}})
	}))

	subs, err := client.ListSubmissions(context.Background(), "c1", "a1")
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d submissions, want 2", len(subs))
	}
	if subs[1].AssignedGrade != nil {
		t.Errorf("ungraded submission should decode to nil grade: %+v", subs[1])
	}
}
