package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one kind of cache state change.
type AuditEventType string

const (
	AuditContextSwitch  AuditEventType = "context_switch"
	AuditCacheLoad      AuditEventType = "cache_load"
	AuditCacheFallback  AuditEventType = "cache_fallback"
	AuditCacheSave      AuditEventType = "cache_save"
	AuditCacheSaveError AuditEventType = "cache_save_error"
	AuditVariantRecord  AuditEventType = "variant_record"
	AuditVariantSelect  AuditEventType = "variant_select"
	AuditRename         AuditEventType = "conversation_rename"
	AuditDelete         AuditEventType = "conversation_delete"
)

// AuditEvent is one JSON line of audit.log.
type AuditEvent struct {
	Type         AuditEventType
	Participant  string
	Conversation string
	Mode         string
	Turn         int
	Role         string
	Path         string
	Selected     int
	Total        int
	Error        string
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	logger *zap.Logger
	file   *os.File
}

var (
	auditLogger *AuditLogger
	auditMu     sync.Mutex
)

// Audit returns the process audit logger, opening audit.log on first use.
// It is a no-op when debug mode is off.
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditLogger != nil {
		return auditLogger
	}
	if !IsDebugMode() {
		return &AuditLogger{logger: zap.NewNop()}
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	file, err := os.OpenFile(filepath.Join(dir, "audit.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		Get(CategoryBoot).Warn("could not open audit log: %v", err)
		return &AuditLogger{logger: zap.NewNop()}
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.EpochMillisTimeEncoder
	cfg.TimeKey = "ts"
	cfg.MessageKey = "event"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(file), zapcore.DebugLevel)
	auditLogger = &AuditLogger{logger: zap.New(core), file: file}
	return auditLogger
}

// CloseAudit flushes and closes the audit log.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		return
	}
	_ = auditLogger.logger.Sync()
	if auditLogger.file != nil {
		auditLogger.file.Close()
	}
	auditLogger = nil
}

// Log writes e. Empty fields are omitted.
func (a *AuditLogger) Log(e AuditEvent) {
	fields := []zap.Field{zap.String("participant", e.Participant), zap.String("conversation", e.Conversation)}
	if e.Mode != "" {
		fields = append(fields, zap.String("mode", e.Mode))
	}
	if e.Role != "" {
		fields = append(fields, zap.Int("turn", e.Turn), zap.String("role", e.Role),
			zap.Int("selected", e.Selected), zap.Int("total", e.Total))
	}
	if e.Path != "" {
		fields = append(fields, zap.String("path", e.Path))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
		a.logger.Warn(string(e.Type), fields...)
		return
	}
	a.logger.Info(string(e.Type), fields...)
}
