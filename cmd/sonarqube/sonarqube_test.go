package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/akawula/QualityMatic/internal/testutil"
)

func newFake(t *testing.T) *testutil.FakeSonarQube {
	t.Helper()
	fake := testutil.NewFakeSonarQube(
		testutil.FakeProject{Key: "api", Name: "API", Measures: map[string]string{"reliability_rating": "1.0", "sqale_rating": "2.0", "security_rating": "1.0", "bugs": "3"}},
		testutil.FakeProject{Key: "web", Name: "Web", Measures: map[string]string{"reliability_rating": "4.0", "sqale_rating": "2.0", "security_rating": "2.0", "bugs": "9"}},
	)
	fake.Token = "squ_test"
	fake.AddHotspots("web", []testutil.FakeHotspot{
		{Key: "h1", Component: "web:app.go", Project: "web", VulnerabilityProbability: "HIGH", Status: "TO_REVIEW", SecurityCategory: "xss", Line: 4, Message: "escape output", RuleKey: "go:S5131"},
	}, []testutil.FakeComponent{{Key: "web:app.go", LongName: "cmd/app.go"}})
	t.Cleanup(fake.Close)
	return fake
}

func run(t *testing.T, fake *testutil.FakeSonarQube, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs(append([]string{"--url", fake.URL(), "--token", "squ_test"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestProjectsCommand(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 projects")
	assert.Contains(t, out, "(key: web)")

	out, err = run(t, fake, "projects", "--format", "json")
	require.NoError(t, err)
	var projects []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	assert.Len(t, projects, 2)
}

func TestAggregateCommand_JSON(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "aggregate", "api", "web", "ghost", "--format", "json")
	require.NoError(t, err)

	var result map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, map[string]int{
		"projects_count_request":       3,
		"projects_count_with_measures": 2,
		"reliability_rating":           3,
		"sqale_rating":                 2,
		"security_rating":              2,
	}, result)
}

func TestAggregateCommand_All(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "aggregate", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Projects requested:     2")
	assert.Contains(t, out, "Reliability")
}

func TestAggregateCommand_NoKeys(t *testing.T) {
	fake := newFake(t)

	_, err := run(t, fake, "aggregate")
	assert.Error(t, err)
}

func TestMeasuresCommand_YAML(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "measures", "api", "--metrics", "bugs", "--format", "yaml")
	require.NoError(t, err)

	var index map[string]map[string]float64
	require.NoError(t, yaml.Unmarshal([]byte(out), &index))
	assert.Equal(t, map[string]map[string]float64{"api": {"bugs": 3}}, index)
}

func TestSummaryCommand(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "summary", "--format", "detailed")
	require.NoError(t, err)
	assert.Contains(t, out, "Total Projects: 2")
	assert.Contains(t, out, "Project: Web (web)")
}

func TestHotspotsCommand(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "hotspots", "web")
	require.NoError(t, err)
	assert.Contains(t, out, "cmd/app.go")
	assert.Contains(t, out, "go:S5131")
}

func TestHotspotsCommand_XLSX(t *testing.T) {
	fake := newFake(t)
	path := filepath.Join(t.TempDir(), "web.xlsx")

	out, err := run(t, fake, "hotspots", "web", "--format", "xlsx", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 hotspots to "+path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	component, err := f.GetCellValue("Vulnerabilities", "C2")
	require.NoError(t, err)
	assert.Equal(t, "cmd/app.go", component)

	severity, err := f.GetCellValue("Security Summary", "A2")
	require.NoError(t, err)
	assert.Equal(t, "HIGH", severity)
}

func TestXLSXFormat_OnlyForHotspots(t *testing.T) {
	fake := newFake(t)

	_, err := run(t, fake, "projects", "--format", "xlsx")
	assert.ErrorContains(t, err, "only supported by the hotspots command")
}

func TestProjectCommand(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "project", "api", "--metrics", "bugs,sqale_rating")
	require.NoError(t, err)
	assert.Contains(t, out, "Project: API (api)")
	assert.Contains(t, out, "bugs")

	out, err = run(t, fake, "project", "ghost", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"ghost","exists":false}`, out)
}

func TestGroupAndUserCommands(t *testing.T) {
	fake := newFake(t)

	out, err := run(t, fake, "group", "create", "qa", "--description", "Quality")
	require.NoError(t, err)
	assert.Contains(t, out, "Group qa created.")
	assert.True(t, fake.HasGroup("qa"))

	out, err = run(t, fake, "group", "exists", "qa")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = run(t, fake, "group", "create", "qa")
	assert.Error(t, err, "duplicate group is rejected")

	_, err = run(t, fake, "group", "delete", "qa")
	require.NoError(t, err)
	assert.False(t, fake.HasGroup("qa"))

	_, err = run(t, fake, "user", "create", "jdoe", "--name", "John")
	require.NoError(t, err)
	assert.True(t, fake.UserActive("jdoe"))

	_, err = run(t, fake, "user", "update", "jdoe", "--email", "j@example.com")
	require.NoError(t, err)

	_, err = run(t, fake, "user", "deactivate", "jdoe")
	require.NoError(t, err)
	assert.False(t, fake.UserActive("jdoe"))
}

func TestCommands_RequireToken(t *testing.T) {
	t.Setenv("SONAR_TOKEN", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--token", "", "projects"})
	assert.Error(t, cmd.Execute())
}

func TestCommands_WrongTokenSurfaces(t *testing.T) {
	fake := newFake(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--url", fake.URL(), "--token", "wrong", "aggregate", "api"})
	assert.Error(t, cmd.Execute())
}
