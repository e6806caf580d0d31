package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SettingsService exposes the loaded process Settings for diagnostic
// commands (e.g. `portcore config show`), with optional sanitization and
// section filtering.
type SettingsService interface {
	// GetSettings returns the current settings rendered per opts.
	GetSettings(ctx context.Context, opts GetSettingsOptions) (*SettingsResponse, error)

	// GetSettingsVersion returns a content hash of the current settings.
	GetSettingsVersion() string

	// GetSettingsSource returns where the settings were loaded from.
	GetSettingsSource() SettingsSource
}

// GetSettingsOptions controls rendering of exported settings.
type GetSettingsOptions struct {
	Sanitize bool
	Sections []string // empty = all sections
}

// SettingsResponse is the exported view of the process settings.
type SettingsResponse struct {
	Version        string                 `json:"version"`
	Source         SettingsSource         `json:"source"`
	LoadedAt       time.Time              `json:"loaded_at"`
	ConfigFilePath string                 `json:"config_file_path,omitempty"`
	Settings       map[string]interface{} `json:"settings"`
}

// SettingsSource identifies where settings came from.
type SettingsSource string

const (
	SettingsSourceFile     SettingsSource = "file"
	SettingsSourceEnv      SettingsSource = "env"
	SettingsSourceDefaults SettingsSource = "defaults"
	SettingsSourceMixed    SettingsSource = "mixed"
)

// DefaultSettingsService implements SettingsService.
type DefaultSettingsService struct {
	settings   *Settings
	configPath string
	loadedAt   time.Time
	source     SettingsSource
	sanitizer  Sanitizer

	cacheMu     sync.RWMutex
	cachedResp  *SettingsResponse
	cacheKey    string
	cacheExpiry time.Time
}

// NewSettingsService creates a SettingsService wrapping the given loaded
// settings.
func NewSettingsService(s *Settings, configPath string, loadedAt time.Time, source SettingsSource) SettingsService {
	return &DefaultSettingsService{
		settings:   s,
		configPath: configPath,
		loadedAt:   loadedAt,
		source:     source,
		sanitizer:  NewDefaultSanitizer(),
	}
}

// GetSettings implements SettingsService. Responses are cached in memory for
// 1s so repeated calls on the same service in a short window don't
// re-serialize.
func (s *DefaultSettingsService) GetSettings(ctx context.Context, opts GetSettingsOptions) (*SettingsResponse, error) {
	cacheKey := s.buildCacheKey(opts)
	if cached := s.getCachedResponse(cacheKey); cached != nil {
		return cached, nil
	}

	settingsMap, err := s.settingsToMap(s.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to convert settings to map: %w", err)
	}

	if opts.Sanitize {
		settingsMap = s.sanitizeMap(settingsMap)
	}

	if len(opts.Sections) > 0 {
		settingsMap = filterSections(settingsMap, opts.Sections)
	}

	resp := &SettingsResponse{
		Version:        s.GetSettingsVersion(),
		Source:         s.source,
		LoadedAt:       s.loadedAt,
		ConfigFilePath: s.configPath,
		Settings:       settingsMap,
	}

	s.setCachedResponse(cacheKey, resp)
	return resp, nil
}

// GetSettingsVersion implements SettingsService.
func (s *DefaultSettingsService) GetSettingsVersion() string {
	settingsJSON, err := json.Marshal(s.settings)
	if err != nil {
		return fmt.Sprintf("error-%d", time.Now().Unix())
	}
	hash := sha256.Sum256(settingsJSON)
	return hex.EncodeToString(hash[:])
}

// GetSettingsSource implements SettingsService.
func (s *DefaultSettingsService) GetSettingsSource() SettingsSource {
	return s.source
}

func (s *DefaultSettingsService) buildCacheKey(opts GetSettingsOptions) string {
	sectionsKey := ""
	if len(opts.Sections) > 0 {
		sectionsKey = fmt.Sprintf("-%v", opts.Sections)
	}
	return fmt.Sprintf("%s-%t%s", s.GetSettingsVersion(), opts.Sanitize, sectionsKey)
}

func (s *DefaultSettingsService) getCachedResponse(cacheKey string) *SettingsResponse {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if s.cachedResp != nil && s.cacheKey == cacheKey && time.Now().Before(s.cacheExpiry) {
		return s.cachedResp
	}
	return nil
}

func (s *DefaultSettingsService) setCachedResponse(cacheKey string, resp *SettingsResponse) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cachedResp = resp
	s.cacheKey = cacheKey
	s.cacheExpiry = time.Now().Add(1 * time.Second)
}

// settingsToMap converts Settings to a generic map for JSON rendering.
func (s *DefaultSettingsService) settingsToMap(settings *Settings) (map[string]interface{}, error) {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(settingsJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings to map: %w", err)
	}
	return m, nil
}

// sanitizeMap walks the top-level sections and redacts any leaf key whose
// name looks credential-shaped.
func (s *DefaultSettingsService) sanitizeMap(m map[string]interface{}) map[string]interface{} {
	flat := make(map[string]string)
	for section, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			for k, vv := range nested {
				flat[section+"."+k] = fmt.Sprintf("%v", vv)
			}
		}
	}
	sanitizedFlat := s.sanitizer.SanitizeSettings(flat)

	out := make(map[string]interface{}, len(m))
	for section, v := range m {
		nested, ok := v.(map[string]interface{})
		if !ok {
			out[section] = v
			continue
		}
		outNested := make(map[string]interface{}, len(nested))
		for k, vv := range nested {
			if redacted, wasRedacted := sanitizedFlat[section+"."+k]; wasRedacted && looksLikeSecretKey(k) {
				outNested[k] = redacted
			} else {
				outNested[k] = vv
			}
		}
		out[section] = outNested
	}
	return out
}

// filterSections keeps only the named top-level sections.
func filterSections(m map[string]interface{}, sections []string) map[string]interface{} {
	filtered := make(map[string]interface{}, len(sections))
	for _, section := range sections {
		if v, ok := m[section]; ok {
			filtered[section] = v
		}
	}
	return filtered
}
