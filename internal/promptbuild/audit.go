package promptbuild

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kayz/promptbot/internal/config"
)

const defaultAuditPrefix = "promptbuild"

// Auditor appends one JSON line per assembled prompt to a daily file and
// prunes files older than the retention window.
type Auditor struct {
	cfg config.AuditConfig
	mu  sync.Mutex
	now func() time.Time
}

// NewAuditor returns nil when auditing is disabled.
func NewAuditor(cfg config.AuditConfig) *Auditor {
	if !cfg.Enabled {
		return nil
	}
	return &Auditor{cfg: cfg, now: time.Now}
}

type auditRecord struct {
	Timestamp        string   `json:"timestamp"`
	RequestDigest    string   `json:"request_digest"`
	FinalPrompt      string   `json:"final_prompt"`
	EffectiveContext int      `json:"effective_context"`
	PromptTokens     int      `json:"prompt_tokens"`
	Warning          *Warning `json:"warning,omitempty"`
}

func (a *Auditor) prefix() string {
	prefix := strings.TrimSpace(a.cfg.FilePrefix)
	if prefix == "" {
		return defaultAuditPrefix
	}
	return prefix
}

// Record appends res to today's audit file.
func (a *Auditor) Record(req BuildRequest, res *BuildResult) error {
	if err := os.MkdirAll(a.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	now := a.now()
	filePath := filepath.Join(a.cfg.Dir, fmt.Sprintf("%s-%s.jsonl", a.prefix(), now.Format("2006-01-02")))

	record := auditRecord{
		Timestamp:        now.Format(time.RFC3339),
		RequestDigest:    buildRequestDigest(req),
		FinalPrompt:      res.Prompt,
		EffectiveContext: res.EffectiveContext,
		PromptTokens:     res.PromptTokens,
		Warning:          res.Warning,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := appendJSONL(filePath, line); err != nil {
		return err
	}
	return a.cleanupWithNow(now)
}

func appendJSONL(filePath string, line []byte) error {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	return nil
}

// Cleanup removes audit files older than the retention window.
func (a *Auditor) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cleanupWithNow(a.now())
}

func (a *Auditor) cleanupWithNow(now time.Time) error {
	if a.cfg.RetentionDays <= 0 {
		return nil
	}

	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list audit dir: %w", err)
	}

	prefix := a.prefix()
	cutoff := now.AddDate(0, 0, -a.cfg.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}

		filePath := filepath.Join(a.cfg.Dir, name)
		expired := false
		if fileDate, ok := parseAuditDate(name, prefix); ok {
			expired = fileDate.Before(startOfDay(cutoff))
		} else {
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat audit file %s: %w", filePath, err)
			}
			expired = info.ModTime().Before(cutoff)
		}
		if !expired {
			continue
		}
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old audit file %s: %w", filePath, err)
		}
	}
	return nil
}

func parseAuditDate(filename, prefix string) (time.Time, bool) {
	raw := strings.TrimSuffix(filename, ".jsonl")
	raw = strings.TrimPrefix(raw, prefix+"-")
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func buildRequestDigest(req BuildRequest) string {
	digestInput := struct {
		TemplateHash       string `json:"template_hash"`
		HistoryCount       int    `json:"history_count"`
		QueryLen           int    `json:"query_len"`
		MaxContextExamples int    `json:"max_context_examples"`
		MaxPromptSize      int    `json:"max_prompt_size"`
	}{
		HistoryCount:       len(req.History),
		QueryLen:           len(req.Query),
		MaxContextExamples: req.MaxContextExamples,
		MaxPromptSize:      req.MaxPromptSize,
	}
	if req.Template != nil {
		sum := sha256.Sum256([]byte(req.Template.Text()))
		digestInput.TemplateHash = hex.EncodeToString(sum[:8])
	}
	payload, _ := json.Marshal(digestInput)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
