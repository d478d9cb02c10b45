// Package testutil provides an in-process fake SonarQube Web API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FakeProject is a project served by FakeSonarQube. Measure values are raw API strings.
type FakeProject struct {
	Key      string
	Name     string
	Measures map[string]string
}

// FakeHotspot is a hotspot served by /api/hotspots/search.
type FakeHotspot struct {
	Key                      string `json:"key"`
	Component                string `json:"component"`
	Project                  string `json:"project"`
	SecurityCategory         string `json:"securityCategory,omitempty"`
	VulnerabilityProbability string `json:"vulnerabilityProbability,omitempty"`
	Status                   string `json:"status,omitempty"`
	Line                     int    `json:"line"`
	Message                  string `json:"message"`
	RuleKey                  string `json:"ruleKey"`
}

// FakeComponent is a file component referenced by hotspots.
type FakeComponent struct {
	Key      string `json:"key"`
	Name     string `json:"name,omitempty"`
	LongName string `json:"longName,omitempty"`
}

// FakeSonarQube is a configurable fake SonarQube server.
type FakeSonarQube struct {
	server *httptest.Server
	mu     sync.Mutex

	// Token, when set, must be sent as the basic-auth username.
	Token string
	// MaxPageSize caps the ps parameter like the real server does.
	MaxPageSize int
	// MaxProjectKeys rejects measures searches naming more keys with a 400.
	MaxProjectKeys int

	projects   []FakeProject
	hotspots   map[string][]FakeHotspot
	components []FakeComponent
	groups     map[string]string
	users      map[string]bool
	failures   map[string]int

	// Tracking
	Requests                map[string]int
	MaxProjectKeysSeen      int
	MeasuresSearchKeyCounts []int
}

// NewFakeSonarQube starts a fake server serving the given projects.
func NewFakeSonarQube(projects ...FakeProject) *FakeSonarQube {
	f := &FakeSonarQube{
		MaxPageSize:    500,
		MaxProjectKeys: 100,
		projects:       projects,
		hotspots:       make(map[string][]FakeHotspot),
		groups:         make(map[string]string),
		users:          make(map[string]bool),
		failures:       make(map[string]int),
		Requests:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/components/search", f.handleComponentsSearch)
	mux.HandleFunc("/api/components/show", f.handleComponentsShow)
	mux.HandleFunc("/api/measures/search", f.handleMeasuresSearch)
	mux.HandleFunc("/api/measures/component", f.handleMeasuresComponent)
	mux.HandleFunc("/api/hotspots/search", f.handleHotspotsSearch)
	mux.HandleFunc("/api/user_groups/create", f.handleGroupCreate)
	mux.HandleFunc("/api/user_groups/delete", f.handleGroupDelete)
	mux.HandleFunc("/api/user_groups/search", f.handleGroupSearch)
	mux.HandleFunc("/api/users/create", f.handleUserCreate)
	mux.HandleFunc("/api/users/update", f.handleUserUpdate)
	mux.HandleFunc("/api/users/deactivate", f.handleUserDeactivate)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.Requests[r.URL.Path]++
		status, failing := f.failures[r.URL.Path]
		token := f.Token
		f.mu.Unlock()

		if token != "" {
			user, _, ok := r.BasicAuth()
			if !ok || user != token {
				writeErrors(w, http.StatusUnauthorized, "Authentication required")
				return
			}
		}
		if failing {
			writeErrors(w, status, "injected failure")
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return f
}

// URL returns the base URL of the fake server.
func (f *FakeSonarQube) URL() string {
	return f.server.URL
}

// Close shuts the server down.
func (f *FakeSonarQube) Close() {
	f.server.Close()
}

// FailPath makes every request to path answer with status.
func (f *FakeSonarQube) FailPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = status
}

// AddHotspots registers hotspots and their components for a project.
func (f *FakeSonarQube) AddHotspots(projectKey string, hotspots []FakeHotspot, components []FakeComponent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotspots[projectKey] = append(f.hotspots[projectKey], hotspots...)
	f.components = append(f.components, components...)
}

// RequestCount returns how many requests hit path.
func (f *FakeSonarQube) RequestCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Requests[path]
}

// HasGroup reports whether a group was created and not deleted.
func (f *FakeSonarQube) HasGroup(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[name]
	return ok
}

// UserActive reports whether a user exists and is active.
func (f *FakeSonarQube) UserActive(login string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[login]
}

func (f *FakeSonarQube) pageParams(r *http.Request) (int, int) {
	ps, err := strconv.Atoi(r.URL.Query().Get("ps"))
	if err != nil || ps <= 0 {
		ps = 100
	}
	if ps > f.MaxPageSize {
		ps = f.MaxPageSize
	}
	p, err := strconv.Atoi(r.URL.Query().Get("p"))
	if err != nil || p <= 0 {
		p = 1
	}
	return p, ps
}

func pageBounds(p, ps, total int) (int, int) {
	start := (p - 1) * ps
	if start > total {
		start = total
	}
	end := start + ps
	if end > total {
		end = total
	}
	return start, end
}

func (f *FakeSonarQube) handleComponentsSearch(w http.ResponseWriter, r *http.Request) {
	p, ps := f.pageParams(r)

	f.mu.Lock()
	total := len(f.projects)
	start, end := pageBounds(p, ps, total)
	components := make([]FakeComponent, 0, end-start)
	for _, proj := range f.projects[start:end] {
		components = append(components, FakeComponent{Key: proj.Key, Name: proj.Name})
	}
	f.mu.Unlock()

	writeJSON(w, map[string]interface{}{
		"paging":     map[string]int{"pageIndex": p, "pageSize": ps, "total": total},
		"components": components,
	})
}

func (f *FakeSonarQube) handleComponentsShow(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("component")
	proj, ok := f.project(key)
	if !ok {
		writeErrors(w, http.StatusNotFound, fmt.Sprintf("Component key '%s' not found", key))
		return
	}
	writeJSON(w, map[string]interface{}{
		"component": FakeComponent{Key: proj.Key, Name: proj.Name},
	})
}

func (f *FakeSonarQube) handleMeasuresSearch(w http.ResponseWriter, r *http.Request) {
	keys := splitList(r.URL.Query().Get("projectKeys"))
	metrics := splitList(r.URL.Query().Get("metricKeys"))

	f.mu.Lock()
	f.MeasuresSearchKeyCounts = append(f.MeasuresSearchKeyCounts, len(keys))
	if len(keys) > f.MaxProjectKeysSeen {
		f.MaxProjectKeysSeen = len(keys)
	}
	limit := f.MaxProjectKeys
	f.mu.Unlock()

	if len(keys) == 0 || len(metrics) == 0 {
		writeErrors(w, http.StatusBadRequest, "The 'projectKeys' and 'metricKeys' parameters are missing")
		return
	}
	if limit > 0 && len(keys) > limit {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("'projectKeys' can contains only %d values, got %d", limit, len(keys)))
		return
	}

	// Unknown keys are silently left out of the response.
	measures := []map[string]string{}
	for _, key := range keys {
		proj, ok := f.project(key)
		if !ok {
			continue
		}
		for _, metric := range metrics {
			if value, ok := proj.Measures[metric]; ok {
				measures = append(measures, map[string]string{
					"component": proj.Key,
					"metric":    metric,
					"value":     value,
				})
			}
		}
	}
	sort.SliceStable(measures, func(i, j int) bool {
		return measures[i]["metric"] < measures[j]["metric"]
	})

	writeJSON(w, map[string]interface{}{"measures": measures})
}

func (f *FakeSonarQube) handleMeasuresComponent(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("component")
	proj, ok := f.project(key)
	if !ok {
		writeErrors(w, http.StatusNotFound, fmt.Sprintf("Component key '%s' not found", key))
		return
	}

	measures := []map[string]string{}
	for _, metric := range splitList(r.URL.Query().Get("metricKeys")) {
		if value, ok := proj.Measures[metric]; ok {
			measures = append(measures, map[string]string{"metric": metric, "value": value})
		}
	}
	writeJSON(w, map[string]interface{}{
		"component": map[string]interface{}{
			"key":      proj.Key,
			"name":     proj.Name,
			"measures": measures,
		},
	})
}

func (f *FakeSonarQube) handleHotspotsSearch(w http.ResponseWriter, r *http.Request) {
	p, ps := f.pageParams(r)
	projectKey := r.URL.Query().Get("project")

	f.mu.Lock()
	all := f.hotspots[projectKey]
	total := len(all)
	start, end := pageBounds(p, ps, total)
	page := append([]FakeHotspot{}, all[start:end]...)

	wanted := make(map[string]struct{})
	for _, h := range page {
		wanted[h.Component] = struct{}{}
	}
	components := []FakeComponent{}
	for _, c := range f.components {
		if _, ok := wanted[c.Key]; ok {
			components = append(components, c)
		}
	}
	f.mu.Unlock()

	writeJSON(w, map[string]interface{}{
		"paging":     map[string]int{"pageIndex": p, "pageSize": ps, "total": total},
		"hotspots":   page,
		"components": components,
	})
}

func (f *FakeSonarQube) handleGroupCreate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	name := r.PostFormValue("name")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; ok || name == "" {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("Group '%s' already exists", name))
		return
	}
	f.groups[name] = r.PostFormValue("description")
	writeJSON(w, map[string]interface{}{"group": map[string]string{"name": name}})
}

func (f *FakeSonarQube) handleGroupDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	name := r.PostFormValue("name")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; !ok {
		writeErrors(w, http.StatusNotFound, fmt.Sprintf("No group with name '%s'", name))
		return
	}
	delete(f.groups, name)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeSonarQube) handleGroupSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	f.mu.Lock()
	groups := []map[string]string{}
	for name := range f.groups {
		if strings.Contains(name, q) {
			groups = append(groups, map[string]string{"name": name})
		}
	}
	f.mu.Unlock()
	writeJSON(w, map[string]interface{}{"groups": groups})
}

func (f *FakeSonarQube) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	login := r.PostFormValue("login")
	if login == "" || r.PostFormValue("name") == "" {
		writeErrors(w, http.StatusBadRequest, "The 'login' and 'name' parameters are missing")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users[login] {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("An active user with login '%s' already exists", login))
		return
	}
	f.users[login] = true
	writeJSON(w, map[string]interface{}{"user": map[string]string{"login": login}})
}

func (f *FakeSonarQube) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	login := r.PostFormValue("login")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.users[login] {
		writeErrors(w, http.StatusNotFound, fmt.Sprintf("User '%s' doesn't exist", login))
		return
	}
	writeJSON(w, map[string]interface{}{"user": map[string]string{"login": login}})
}

func (f *FakeSonarQube) handleUserDeactivate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	login := r.PostFormValue("login")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.users[login] {
		writeErrors(w, http.StatusNotFound, fmt.Sprintf("User '%s' doesn't exist", login))
		return
	}
	f.users[login] = false
	writeJSON(w, map[string]interface{}{"user": map[string]interface{}{"login": login, "active": false}})
}

func (f *FakeSonarQube) project(key string) (FakeProject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		if p.Key == key {
			return p, true
		}
	}
	return FakeProject{}, false
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeErrors(w, http.StatusMethodNotAllowed, "POST required")
		return false
	}
	return true
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]string{{"msg": msg}},
	})
}
