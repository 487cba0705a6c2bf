// Package kb loads the red flags, question protocol, clinical references and
// facility directory that the triage pipeline shares read-only.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/triage/internal/extract"
	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
)

// canonicalDirectoryKey is read first when the facility file carries several regions
const canonicalDirectoryKey = "ecosistema_sanitario_regionale"

// Option configures a Loader
type Option func(*Loader)

// WithFetcher sets the fetcher used for http(s) sources
func WithFetcher(f *Fetcher) Option {
	return func(l *Loader) { l.fetcher = f }
}

// WithRegistry sets the document adapters for clinical references
func WithRegistry(r *extract.Registry) Option {
	return func(l *Loader) { l.registry = r }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logging.OrNop(logger) }
}

// Loader reads the knowledge base. It never fails: every problem degrades the
// affected resource to its empty form and is recorded in the Report.
type Loader struct {
	cfg      model.KnowledgeBaseConfig
	fetcher  *Fetcher
	registry *extract.Registry
	logger   *zap.Logger
}

// NewLoader creates a new loader
func NewLoader(cfg model.KnowledgeBaseConfig, opts ...Option) *Loader {
	l := &Loader{
		cfg:      cfg,
		registry: extract.NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fetcher == nil {
		l.fetcher = NewFetcher(30*time.Second, cfg.UserAgent, cfg.MaxBytes, "", "", "")
	}
	return l
}

// Load is shorthand for NewLoader(cfg, opts...).Load(ctx)
func Load(ctx context.Context, cfg model.KnowledgeBaseConfig, opts ...Option) (*model.KnowledgeBase, *Report) {
	return NewLoader(cfg, opts...).Load(ctx)
}

// Load reads every resource
func (l *Loader) Load(ctx context.Context) (*model.KnowledgeBase, *Report) {
	kb := &model.KnowledgeBase{
		RedFlags: model.RedFlagSet{EmergencyMessage: model.DefaultEmergencyMessage},
	}
	report := &Report{}

	if src := l.resolve(l.cfg.RedFlags); src != "" {
		if rules, err := l.loadRedFlags(ctx, src); err != nil {
			l.degrade(report, src, err)
		} else {
			kb.RedFlags = rules
		}
	}
	report.RedFlagRules = len(kb.RedFlags.Rules)
	report.RedFlagKeywords = kb.RedFlags.KeywordCount()

	if src := l.resolve(l.cfg.Protocol); src != "" {
		if protocol, err := l.loadProtocol(ctx, src); err != nil {
			l.degrade(report, src, err)
		} else {
			kb.Protocol = protocol
		}
	}
	report.ProtocolBytes = len(kb.Protocol)

	if src := l.resolve(l.cfg.ClinicalDir); src != "" {
		clinical, docs := l.loadClinical(ctx, src, report)
		limited, truncated := Truncate(clinical, l.cfg.ContextLimit)
		kb.ClinicalContext = limited
		report.Documents = docs
		report.ContextChars = len([]rune(limited))
		report.Truncated = truncated
		if truncated {
			l.logger.Warn("clinical context truncated",
				zap.Int("limit", l.cfg.ContextLimit),
				zap.Int("documents", len(docs)))
		}
	}

	if src := l.resolve(l.cfg.Facilities); src != "" {
		if facilities, err := l.loadFacilities(ctx, src, report); err != nil {
			l.degrade(report, src, err)
		} else {
			kb.Facilities = facilities
		}
	}
	report.Facilities = len(kb.Facilities)
	report.Cities = kb.Cities()

	l.logger.Info("knowledge base loaded",
		zap.Int("red_flag_keywords", report.RedFlagKeywords),
		zap.Int("protocol_bytes", report.ProtocolBytes),
		zap.Int("documents", len(report.Documents)),
		zap.Int("facilities", report.Facilities),
		zap.Int("issues", len(report.Issues)))

	return kb, report
}

// resolve joins a configured path with the base directory. Absolute paths and URLs pass through.
func (l *Loader) resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || isRemote(p) || filepath.IsAbs(p) {
		return p
	}
	base := strings.TrimSpace(l.cfg.Dir)
	if base == "" {
		return p
	}
	if isRemote(base) {
		return strings.TrimSuffix(base, "/") + "/" + filepath.ToSlash(p)
	}
	return filepath.Join(base, p)
}

// degrade records an issue for a whole resource and logs it
func (l *Loader) degrade(report *Report, resource string, err error) {
	kind := IssueParse
	if errors.Is(err, ErrMissingResource) {
		kind = IssueMissing
	}
	report.add(resource, kind, err)
	l.logger.Warn("knowledge resource degraded",
		zap.String("resource", resource),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

// read returns the bytes and content type of a local file or remote resource
func (l *Loader) read(ctx context.Context, src string) ([]byte, string, error) {
	if isRemote(src) {
		result, err := l.fetcher.FetchWithRetry(ctx, src)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMissingResource, err)
		}
		return result.Body, result.ContentType, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrMissingResource, src)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrMissingResource, err)
	}
	return data, "", nil
}

type redFlagFile struct {
	RedFlags []struct {
		Name      string   `json:"name"`
		Category  string   `json:"category"`
		Categoria string   `json:"categoria"`
		Keywords  []string `json:"keywords"`
	} `json:"red_flags"`
	EmergencyMessage string `json:"emergency_message"`
}

func (l *Loader) loadRedFlags(ctx context.Context, src string) (model.RedFlagSet, error) {
	data, _, err := l.read(ctx, src)
	if err != nil {
		return model.RedFlagSet{}, err
	}

	var raw redFlagFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.RedFlagSet{}, fmt.Errorf("%w: red flags: %v", ErrParse, err)
	}

	set := model.RedFlagSet{EmergencyMessage: strings.TrimSpace(raw.EmergencyMessage)}
	if set.EmergencyMessage == "" {
		set.EmergencyMessage = model.DefaultEmergencyMessage
	}

	for i, r := range raw.RedFlags {
		rule := model.RedFlagRule{Name: firstNonEmpty(r.Name, r.Category, r.Categoria)}
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i+1)
		}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				rule.Keywords = append(rule.Keywords, kw)
			}
		}
		if len(rule.Keywords) > 0 {
			set.Rules = append(set.Rules, rule)
		}
	}

	return set, nil
}

func (l *Loader) loadProtocol(ctx context.Context, src string) (string, error) {
	data, _, err := l.read(ctx, src)
	if err != nil {
		return "", err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("%w: protocol: %v", ErrParse, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("%w: protocol: %v", ErrParse, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// loadClinical assembles the reference documents in name order. A remote
// source is a single document.
func (l *Loader) loadClinical(ctx context.Context, src string, report *Report) (string, []string) {
	var parts []string
	var names []string

	appendDoc := func(name, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		parts = append(parts, documentHeader(name)+"\n"+text)
		names = append(names, name)
	}

	if isRemote(src) {
		result, err := l.fetcher.FetchWithRetry(ctx, src)
		if err != nil {
			l.degrade(report, src, fmt.Errorf("%w: %v", ErrMissingResource, err))
			return "", nil
		}
		text, err := l.registry.Extract(result.Name, result.ContentType, result.Body)
		if err != nil {
			l.degrade(report, src, fmt.Errorf("%w: %v", ErrParse, err))
			return "", nil
		}
		appendDoc(result.Name, text)
		return strings.Join(parts, "\n\n"), names
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		l.degrade(report, src, fmt.Errorf("%w: %v", ErrMissingResource, err))
		return "", nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		full := filepath.Join(src, name)
		if !l.registry.Supported(name) {
			report.add(full, IssueSkipped, extract.ErrUnsupported)
			l.logger.Warn("clinical reference skipped", zap.String("file", full), zap.Error(extract.ErrUnsupported))
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			l.degrade(report, full, fmt.Errorf("%w: %v", ErrMissingResource, err))
			continue
		}
		text, err := l.registry.Extract(name, "", data)
		if err != nil {
			l.degrade(report, full, fmt.Errorf("%w: %v", ErrParse, err))
			continue
		}
		appendDoc(name, text)
	}

	return strings.Join(parts, "\n\n"), names
}

type facilityRegion struct {
	Sedi []model.Facility `json:"sedi"`
}

func (l *Loader) loadFacilities(ctx context.Context, src string, report *Report) ([]model.Facility, error) {
	data, _, err := l.read(ctx, src)
	if err != nil {
		return nil, err
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: facilities: %v", ErrParse, err)
	}

	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == canonicalDirectoryKey) != (keys[j] == canonicalDirectoryKey) {
			return keys[i] == canonicalDirectoryKey
		}
		return keys[i] < keys[j]
	})

	var facilities []model.Facility
	found := false
	for _, key := range keys {
		var region facilityRegion
		if err := json.Unmarshal(root[key], &region); err != nil || region.Sedi == nil {
			continue
		}
		found = true
		for i, f := range region.Sedi {
			f.Name = strings.TrimSpace(f.Name)
			f.City = strings.TrimSpace(f.City)
			if f.Name == "" || f.City == "" {
				report.add(fmt.Sprintf("%s#%s[%d]", src, key, i), IssueSkipped, errors.New("record without nome or citta"))
				continue
			}
			f.Type = model.ClassifyFacilityType(f.Tag)
			facilities = append(facilities, f)
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: facilities: no object with a sedi list", ErrParse)
	}
	return facilities, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
