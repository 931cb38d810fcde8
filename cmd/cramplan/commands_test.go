package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/cramplan/internal/planner"
	"github.com/kalambet/cramplan/internal/schedule"
	"github.com/kalambet/cramplan/internal/session"
	"github.com/kalambet/cramplan/internal/storage"
)

func TestMain(m *testing.M) {
	noColor = true
	errOut = io.Discard
	os.Exit(m.Run())
}

var ctx = context.Background()

type fakeSource struct {
	texts map[string]string
	refs  []string
}

func (f *fakeSource) Load(_ context.Context, ref string) (string, error) {
	f.refs = append(f.refs, ref)
	text, ok := f.texts[ref]
	if !ok {
		return "", errors.New("no such source")
	}
	return text, nil
}

func newMaterialsCmd(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("date", "", "")
	addMaterialsFlags(cmd)
	for k, v := range flags {
		if err := cmd.Flags().Set(k, v); err != nil {
			t.Fatalf("setting --%s: %v", k, err)
		}
	}
	return cmd
}

func testState(t *testing.T) schedule.State {
	t.Helper()
	today := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	st, err := schedule.Generate(today, "2025-07-05", []string{"Mitosis phases", "Meiosis vs mitosis"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return st
}

func TestCollectMaterials_Order(t *testing.T) {
	src := &fakeSource{texts: map[string]string{
		"notes.txt":               "From file",
		"https://example.com/ch4": "From web",
	}}
	cmd := newMaterialsCmd(t, map[string]string{
		"materials": "  Inline  ",
		"file":      "notes.txt",
		"url":       "https://example.com/ch4",
	})

	got, err := collectMaterials(ctx, cmd, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Inline\n\nFrom file\n\nFrom web"
	if got != want {
		t.Errorf("materials = %q, want %q", got, want)
	}
	if len(src.refs) != 2 {
		t.Errorf("loaded %d sources, want 2", len(src.refs))
	}
}

func TestCollectMaterials_InlineOnly(t *testing.T) {
	src := &fakeSource{}
	cmd := newMaterialsCmd(t, map[string]string{"materials": "Only inline"})

	got, err := collectMaterials(ctx, cmd, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Only inline" {
		t.Errorf("materials = %q, want %q", got, "Only inline")
	}
	if len(src.refs) != 0 {
		t.Errorf("loader called %d times, want 0", len(src.refs))
	}
}

func TestCollectMaterials_LoadError(t *testing.T) {
	cmd := newMaterialsCmd(t, map[string]string{"file": "missing.txt"})

	_, err := collectMaterials(ctx, cmd, &fakeSource{})
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
	if !strings.Contains(err.Error(), "missing.txt") {
		t.Errorf("error = %q, want it to name the source", err.Error())
	}
}

func TestReadForm(t *testing.T) {
	cmd := newMaterialsCmd(t, map[string]string{
		"name":      "Biology final",
		"date":      "2025-07-05",
		"materials": "Cell cycle",
	})

	f, err := readForm(ctx, cmd, &fakeSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := planner.Form{TestName: "Biology final", TestDate: "2025-07-05", Materials: "Cell cycle"}
	if f != want {
		t.Errorf("form = %+v, want %+v", f, want)
	}
}

func TestWriteSchedule_Text(t *testing.T) {
	st, err := schedule.ToggleDone(testState(t), "2025-06-16", "card-1")
	if err != nil {
		t.Fatalf("ToggleDone: %v", err)
	}

	var buf bytes.Buffer
	if err := writeSchedule(&buf, st, "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Test date: 2025-07-05",
		"1/10 done (10%)",
		"2025-06-15",
		"2025-06-29",
		"[ ] card-0   Mitosis phases",
		"[x] card-1   Meiosis vs mitosis",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "2025-06-15") > strings.Index(out, "2025-06-29") {
		t.Error("dates are not in ascending order")
	}
}

func TestWriteSchedule_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSchedule(&buf, schedule.State{}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "Nothing scheduled") {
		t.Errorf("output = %q, want empty-schedule message", buf.String())
	}
}

func TestWriteSchedule_JSON(t *testing.T) {
	st := testState(t)

	var buf bytes.Buffer
	if err := writeSchedule(&buf, st, "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["testDate"] != "2025-07-05" {
		t.Errorf("testDate = %v, want 2025-07-05", got["testDate"])
	}
	sched, ok := got["schedule"].(map[string]any)
	if !ok || len(sched) != 5 {
		t.Errorf("schedule = %v, want 5 dates", got["schedule"])
	}
}

func TestWriteSchedule_YAML(t *testing.T) {
	st := testState(t)

	var buf bytes.Buffer
	if err := writeSchedule(&buf, st, "yaml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "testDate: \"2025-07-05\"") && !strings.Contains(buf.String(), "testDate: 2025-07-05") {
		t.Errorf("yaml output missing testDate key:\n%s", buf.String())
	}

	var back schedule.State
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if back.TestDate != st.TestDate || len(back.Schedule) != len(st.Schedule) {
		t.Errorf("decoded = %+v, want %+v", back, st)
	}
}

func TestWriteSchedule_UnknownFormat(t *testing.T) {
	err := writeSchedule(io.Discard, testState(t), "xml")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestItemDone(t *testing.T) {
	st, _ := schedule.ToggleDone(testState(t), "2025-06-15", "card-0")
	if !itemDone(st, "2025-06-15", "card-0") {
		t.Error("card-0 on 2025-06-15 should be done")
	}
	if itemDone(st, "2025-06-16", "card-0") {
		t.Error("card-0 on 2025-06-16 should not be done")
	}
	if itemDone(st, "2030-01-01", "card-0") {
		t.Error("unknown date should not be done")
	}
}

func TestWriteStudyPlan(t *testing.T) {
	plan := planner.StudyPlan{
		StudySessions: []planner.StudySession{
			{Date: "2025-06-16", Topics: []string{"Mitosis", "Meiosis"}, EstimatedDuration: "1h"},
		},
		Rationale: "Front-load the hard topics.",
	}

	var buf bytes.Buffer
	writeStudyPlan(&buf, plan)
	out := buf.String()

	for _, want := range []string{"2025-06-16  (1h)", "  - Mitosis", "  - Meiosis", "Why: Front-load the hard topics."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWritePracticeTest(t *testing.T) {
	test := planner.PracticeTest{Questions: "1. What is mitosis?", AnswerKey: "1. Cell division."}

	var hidden bytes.Buffer
	writePracticeTest(&hidden, test, false)
	if strings.Contains(hidden.String(), "Cell division") {
		t.Error("answer key printed without --answers")
	}

	var shown bytes.Buffer
	writePracticeTest(&shown, test, true)
	out := shown.String()
	if !strings.Contains(out, planner.AnswerKeySeparator) || !strings.Contains(out, "Cell division") {
		t.Errorf("output = %q, want separator and answer key", out)
	}
	if strings.Index(out, "What is mitosis") > strings.Index(out, "Cell division") {
		t.Error("answer key printed before questions")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"plan", storage.KindStudyPlan, false},
		{"Quiz", storage.KindPracticeTest, false},
		{"test", storage.KindPracticeTest, false},
		{storage.KindStudyPlan, storage.KindStudyPlan, false},
		{"essay", "", true},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteGenerations(t *testing.T) {
	gens := []storage.Generation{
		{ID: "gen-1", Kind: storage.KindStudyPlan, TestName: "Biology", TestDate: "2025-07-05", CreatedAt: time.Now()},
		{ID: "gen-2", Kind: storage.KindPracticeTest, TestName: "History", TestDate: "2025-08-01", CreatedAt: time.Now()},
	}

	var buf bytes.Buffer
	writeGenerations(&buf, gens)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[2], "gen-2") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestProgressLabel(t *testing.T) {
	if got := progressLabel(0, 0); got != "nothing scheduled" {
		t.Errorf("progressLabel(0, 0) = %q", got)
	}
	if got := progressLabel(3, 10); got != "3/10 done (30%)" {
		t.Errorf("progressLabel(3, 10) = %q", got)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removePIDFile")
	}
}

func TestAPIClient_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	ok, code := c.healthy(ctx)
	if !ok || code != http.StatusOK {
		t.Errorf("healthy = %v, %d, want true, 200", ok, code)
	}
}

func TestAPIClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := &apiClient{baseURL: url, httpClient: &http.Client{Timeout: time.Second}}
	ok, code := c.healthy(ctx)
	if ok || code != 0 {
		t.Errorf("healthy = %v, %d, want false, 0", ok, code)
	}
	if _, err := c.get(ctx, "/schedule"); err == nil || !strings.Contains(err.Error(), "is cramplan running") {
		t.Errorf("get error = %v, want not-reachable hint", err)
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	resp, err := c.get(ctx, "/generations/nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("decodeJSON error = %v, want 404", err)
	}
}

func TestScheduleStatus_FromServer(t *testing.T) {
	st := testState(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schedule" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	got, err := scheduleStatus(ctx, c, true, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TestDate != st.TestDate || len(got.Schedule) != len(st.Schedule) {
		t.Errorf("state = %+v, want %+v", got, st)
	}
}

func TestScheduleStatus_FallsBackToStore(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := session.NewManager(store).Generate("2999-01-01", "Mitosis\nMeiosis"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	store.Close()

	got, err := scheduleStatus(ctx, newAPIClient(1), false, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TestDate != "2999-01-01" || len(got.Items) != 2 {
		t.Errorf("state = %+v, want 2 items for 2999-01-01", got)
	}
}

func TestCommandTree(t *testing.T) {
	want := []string{"start", "stop", "status", "plan", "quiz", "cards", "history", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, path := range [][]string{
		{"cards", "generate"}, {"cards", "show"}, {"cards", "toggle"}, {"cards", "review"}, {"cards", "clear"},
		{"history", "list"}, {"history", "show"}, {"history", "delete"},
		{"config", "show"}, {"config", "set"}, {"config", "set-key"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("command %q not registered", strings.Join(path, " "))
		}
	}
}

func TestCardsToggle_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"cards", "toggle", "2025-06-15"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing card id")
	}
	if !strings.Contains(err.Error(), "accepts 2 arg(s)") {
		t.Errorf("error = %q, want arg count error", err.Error())
	}
}

func TestVersionCommand(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "cramplan version dev") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestCardsClear(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("CRAMPLAN_STORAGE_DATA_DIR", dir)
	defer rootCmd.SetArgs(nil)
	defer cardsClearCmd.Flags().Set("confirm", "false")

	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := session.NewManager(store).Generate("2999-01-01", "Mitosis\nMeiosis"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	store.Close()

	loadState := func() schedule.State {
		t.Helper()
		s, err := storage.Open(dir)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer s.Close()
		st, err := session.NewManager(s).Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return st
	}

	rootCmd.SetArgs([]string{"cards", "clear"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("clear without --confirm: %v", err)
	}
	if st := loadState(); st.IsZero() {
		t.Fatal("schedule deleted without --confirm")
	}

	rootCmd.SetArgs([]string{"cards", "clear", "--confirm"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("clear --confirm: %v", err)
	}
	if st := loadState(); !st.IsZero() {
		t.Errorf("state = %+v, want empty after clear", st)
	}
}

func TestColorize(t *testing.T) {
	if got := colorize(colorGreen, "ok"); got != "ok" {
		t.Errorf("colorize with noColor = %q, want plain text", got)
	}

	noColor = false
	defer func() { noColor = true }()
	if got := colorize(colorBold, "Test date:"); !strings.Contains(got, "Test date:") {
		t.Errorf("colorize = %q, want it to keep the text", got)
	}
}
