package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLogging(t *testing.T) {
	t.Helper()
	CloseAll()
	CloseAudit()
	configMu.Lock()
	settings = Settings{}
	logsDir = ""
	configMu.Unlock()
	t.Cleanup(func() {
		CloseAll()
		CloseAudit()
		configMu.Lock()
		settings = Settings{}
		configMu.Unlock()
	})
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	categories := []Category{
		CategoryBoot,
		CategoryCache,
		CategorySession,
		CategoryNavigation,
		CategoryTranscript,
		CategoryWatch,
		CategoryRender,
	}
	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Info("Test info message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for _, cat := range categories {
		path := filepath.Join(dir, date+"_"+string(cat)+".log")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("Log file for %s not created: %v", cat, err)
			continue
		}
		if !strings.Contains(string(data), "Test info message for "+string(cat)) {
			t.Errorf("Log file for %s missing info message", cat)
		}
	}
}

func TestProductionModeWritesNothing(t *testing.T) {
	resetLogging(t)
	dir := filepath.Join(t.TempDir(), "logs")

	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Cache("should not be written")
	Audit().Log(AuditEvent{Type: AuditCacheSave})

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected no logs directory in production mode, stat err=%v", err)
	}
}

func TestCategoryFilter(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	err := Initialize(dir, Settings{
		DebugMode:  true,
		Categories: map[string]bool{"watch": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if IsCategoryEnabled(CategoryWatch) {
		t.Error("watch category should be disabled")
	}
	if !IsCategoryEnabled(CategoryCache) {
		t.Error("unlisted categories default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	CacheDebug("hidden debug")
	CacheWarn("visible warning")
	CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+"_cache.log"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(data), "hidden debug") {
		t.Error("debug line written at warn level")
	}
	if !strings.Contains(string(data), "visible warning") {
		t.Error("warning line missing")
	}
}

func TestRequestLoggerJSON(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug", JSONFormat: true}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	WithRequestID(CategoryNavigation, "req-42").WithField("turn", 3).Info("navigated")
	CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+"_navigation.log"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", data, err)
	}
	if entry["req"] != "req-42" {
		t.Errorf("expected req=req-42, got %v", entry["req"])
	}
	if entry["turn"] != float64(3) {
		t.Errorf("expected turn=3, got %v", entry["turn"])
	}
}

func TestAuditLog(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Audit().Log(AuditEvent{
		Type:         AuditVariantSelect,
		Participant:  "Ada",
		Conversation: "c1",
		Turn:         2,
		Role:         "assistant",
		Selected:     1,
		Total:        3,
	})
	CloseAudit()

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	if entry["event"] != string(AuditVariantSelect) {
		t.Errorf("unexpected event %v", entry["event"])
	}
	if entry["selected"] != float64(1) || entry["total"] != float64(3) {
		t.Errorf("unexpected positions: %v/%v", entry["selected"], entry["total"])
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	resetLogging(t)
	if err := Initialize("", Settings{}); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestConvenienceWarnings(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "info"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Boot("starting %s", "scan")
	NavigationWarn("cache for %s not saved", "c1")
	TranscriptWarn("history %s padded", "c2")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for cat, want := range map[Category]string{
		CategoryBoot:       "starting scan",
		CategoryNavigation: "cache for c1 not saved",
		CategoryTranscript: "history c2 padded",
	} {
		data, err := os.ReadFile(filepath.Join(dir, date+"_"+string(cat)+".log"))
		if err != nil {
			t.Errorf("ReadFile %s failed: %v", cat, err)
			continue
		}
		if !strings.Contains(string(data), want) {
			t.Errorf("%s log missing %q", cat, want)
		}
	}
}

func TestTimerThreshold(t *testing.T) {
	resetLogging(t)
	dir := t.TempDir()

	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	fast := StartTimer(CategoryCache, "fast op")
	if elapsed := fast.StopWithThreshold(time.Hour); elapsed < 0 {
		t.Errorf("expected non-negative elapsed time, got %v", elapsed)
	}
	slow := StartTimer(CategoryCache, "slow op")
	time.Sleep(5 * time.Millisecond)
	slow.StopWithThreshold(time.Nanosecond)
	CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+"_cache.log"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "fast op completed in") {
		t.Error("fast timer should log completion at debug")
	}
	if !strings.Contains(string(data), "slow op slow:") {
		t.Error("slow timer should log a warning")
	}
}
