package config

import (
	"encoding/json"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// Value is a plain config string that may also be given as an
// {"$env": "VAR"} reference
type Value string

// Duration is a time.Duration written as a Go duration string ("1s", "10m")
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// StorageKind selects the KV backend
type StorageKind string

const (
	StorageMemory     StorageKind = "memory"
	StorageFilesystem StorageKind = "filesystem"
	StorageRedis      StorageKind = "redis"
	StorageS3         StorageKind = "s3"
	StorageFirestore  StorageKind = "firestore"
	StorageSQLite     StorageKind = "sqlite"
)

// NotifierKind selects how the operator is told to re-authorize
type NotifierKind string

const (
	NotifierLog      NotifierKind = "log"
	NotifierPushover NotifierKind = "pushover"
	NotifierWebhook  NotifierKind = "webhook"
)

// Config represents the config file structure
type Config struct {
	Version       string                     `json:"version"`
	Server        ServerConfig               `json:"server"`
	Storage       StorageConfig              `json:"storage"`
	Notifier      NotifierConfig             `json:"notifier"`
	Authorization AuthorizationConfig        `json:"authorization"`
	Providers     map[string]*ProviderConfig `json:"providers"`
}

// ServerConfig is the inbound HTTP surface
type ServerConfig struct {
	Addr            Value    `json:"addr"`
	BaseURL         Value    `json:"baseURL"`
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty"`
}

// StorageConfig selects and configures the KV backend. Only the fields of
// the selected kind are read.
type StorageConfig struct {
	Kind StorageKind `json:"kind"`

	// filesystem directory or sqlite database file
	Path string `json:"path,omitempty"`
	// key prefix for redis and object prefix for s3
	Prefix string `json:"prefix,omitempty"`

	RedisAddr     Value  `json:"redisAddr,omitempty"`
	RedisPassword Secret `json:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDb,omitempty"`

	S3Endpoint  Value  `json:"s3Endpoint,omitempty"`
	S3Bucket    Value  `json:"s3Bucket,omitempty"`
	S3AccessKey Secret `json:"s3AccessKey,omitempty"`
	S3SecretKey Secret `json:"s3SecretKey,omitempty"`
	S3UseSSL    bool   `json:"s3UseSSL,omitempty"`

	GCPProject          Value  `json:"gcpProject,omitempty"`
	FirestoreDatabase   string `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string `json:"firestoreCollection,omitempty"`

	// EncryptionKey seals every stored value when set. Must be 32 bytes.
	EncryptionKey Secret `json:"encryptionKey,omitempty"`
}

// NotifierConfig configures operator notification
type NotifierConfig struct {
	Kind           NotifierKind     `json:"kind"`
	PushoverToken  Secret           `json:"pushoverToken,omitempty"`
	PushoverUser   Secret           `json:"pushoverUser,omitempty"`
	WebhookURL     Value            `json:"webhookUrl,omitempty"`
	WebhookHeaders map[string]Value `json:"webhookHeaders,omitempty"`
}

// AuthorizationConfig tunes the authorization-code flow and refresh policy
type AuthorizationConfig struct {
	PollAttempts     int      `json:"pollAttempts,omitempty"`
	PollInterval     Duration `json:"pollInterval,omitempty"`
	SessionTTL       Duration `json:"sessionTtl,omitempty"`
	WaitOnRequest    bool     `json:"waitOnRequest,omitempty"`
	OnRefreshFailure string   `json:"onRefreshFailure,omitempty"`
}

// ProviderConfig is one upstream OAuth provider. Unset fields fall back to
// the built-in defaults for known provider names.
type ProviderConfig struct {
	ClientID     Value             `json:"clientId"`
	ClientSecret Secret            `json:"clientSecret"`
	AuthorizeURL string            `json:"authorizeUrl,omitempty"`
	TokenURL     string            `json:"tokenUrl,omitempty"`
	RedirectURI  Value             `json:"redirectUri,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
	Encoding     string            `json:"encoding,omitempty"`
	CallbackMode string            `json:"callbackMode,omitempty"`
	AuthParams   map[string]string `json:"authParams,omitempty"`

	// DataURL is the upstream data endpoint the device payload is built from
	DataURL string `json:"dataUrl,omitempty"`
	// SiteID fills the {siteId} placeholder of the energy data URL
	SiteID Value `json:"siteId,omitempty"`
}
