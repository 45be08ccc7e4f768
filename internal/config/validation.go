package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var (
	storageKinds  = []StorageKind{StorageMemory, StorageFilesystem, StorageRedis, StorageS3, StorageFirestore, StorageSQLite}
	notifierKinds = []NotifierKind{NotifierLog, NotifierPushover, NotifierWebhook}
	encodings     = []string{"form", "json"}
	callbackModes = []string{"store", "exchange"}
	failurePolicy = []string{"reauthorize", "fail"}
)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := readJSON(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if version != SupportedVersion {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		result.addError("", "%v", err)
	}

	validateServerStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateProvidersStructure(rawConfig, result)

	return result, nil
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}
	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://board.example.com\"")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		result.addWarning("storage", "no storage configured, tokens will be kept in memory and lost on restart")
		return
	}
	kind, _ := storage["kind"].(string)
	if !slices.Contains(storageKinds, StorageKind(kind)) {
		result.addError("storage.kind", "invalid storage kind '%s'", kind)
		return
	}
	if kind == string(StorageMemory) {
		result.addWarning("storage.kind", "memory storage does not survive restarts")
	}
	if _, ok := storage["encryptionKey"]; !ok && kind != string(StorageMemory) {
		result.addWarning("storage.encryptionKey", "tokens will be stored unencrypted")
	}
}

func validateProvidersStructure(rawConfig map[string]any, result *ValidationResult) {
	providers, ok := rawConfig["providers"].(map[string]any)
	if !ok || len(providers) == 0 {
		result.addError("providers", "at least one provider is required")
		return
	}

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, ok := providers[name].(map[string]any)
		if !ok {
			continue
		}
		path := "providers." + name
		for _, field := range []string{"clientId", "clientSecret"} {
			if _, ok := p[field]; !ok {
				result.addError(path+"."+field, "%s is required", field)
			}
		}
		if _, known := providerDefaults[name]; !known {
			for _, field := range []string{"authorizeUrl", "tokenUrl"} {
				if _, ok := p[field]; !ok {
					result.addError(path+"."+field, "%s is required for custom provider %s", field, name)
				}
			}
		}
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if err := validateURL(string(config.Server.BaseURL)); err != nil {
		return fmt.Errorf("server.baseURL: %w", err)
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := validateNotifierConfig(&config.Notifier); err != nil {
		return fmt.Errorf("notifier config: %w", err)
	}

	a := config.Authorization
	if a.PollAttempts < 0 {
		return fmt.Errorf("authorization.pollAttempts cannot be negative")
	}
	if a.PollInterval < 0 || a.SessionTTL < 0 {
		return fmt.Errorf("authorization durations cannot be negative")
	}
	if !slices.Contains(failurePolicy, a.OnRefreshFailure) {
		return fmt.Errorf("authorization.onRefreshFailure must be one of %s", strings.Join(failurePolicy, ", "))
	}

	if len(config.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for name, p := range config.Providers {
		if err := validateProvider(name, p); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}

func validateStorageConfig(s *StorageConfig) error {
	switch s.Kind {
	case StorageMemory:
	case StorageFilesystem, StorageSQLite:
		if s.Path == "" {
			return fmt.Errorf("path is required for %s storage", s.Kind)
		}
	case StorageRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required for redis storage")
		}
	case StorageS3:
		if s.S3Endpoint == "" || s.S3Bucket == "" {
			return fmt.Errorf("s3Endpoint and s3Bucket are required for s3 storage")
		}
	case StorageFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("invalid storage kind %q", s.Kind)
	}

	if s.EncryptionKey != "" && len(s.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(s.EncryptionKey))
	}
	return nil
}

func validateNotifierConfig(n *NotifierConfig) error {
	if !slices.Contains(notifierKinds, n.Kind) {
		return fmt.Errorf("invalid notifier kind %q", n.Kind)
	}
	switch n.Kind {
	case NotifierPushover:
		if n.PushoverToken == "" || n.PushoverUser == "" {
			return fmt.Errorf("pushoverToken and pushoverUser are required")
		}
	case NotifierWebhook:
		if err := validateURL(string(n.WebhookURL)); err != nil {
			return fmt.Errorf("webhookUrl: %w", err)
		}
	}
	return nil
}

func validateProvider(name string, p *ProviderConfig) error {
	if p == nil {
		return fmt.Errorf("provider %s is empty", name)
	}
	if p.ClientID == "" {
		return fmt.Errorf("provider %s: clientId is required", name)
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("provider %s: clientSecret is required", name)
	}
	urls := []struct{ field, raw string }{
		{"authorizeUrl", p.AuthorizeURL},
		{"tokenUrl", p.TokenURL},
		{"redirectUri", string(p.RedirectURI)},
	}
	for _, u := range urls {
		if u.raw == "" {
			return fmt.Errorf("provider %s: %s is required", name, u.field)
		}
		if err := validateURL(u.raw); err != nil {
			return fmt.Errorf("provider %s: %s: %w", name, u.field, err)
		}
	}
	if !slices.Contains(encodings, p.Encoding) {
		return fmt.Errorf("provider %s: encoding must be form or json", name)
	}
	if !slices.Contains(callbackModes, p.CallbackMode) {
		return fmt.Errorf("provider %s: callbackMode must be store or exchange", name)
	}
	if strings.Contains(p.DataURL, "{siteId}") && p.SiteID == "" {
		return fmt.Errorf("provider %s: siteId is required by dataUrl", name)
	}
	return nil
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
