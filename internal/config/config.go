// Package config provides file-based configuration for the workbench server.
// The format follows the file extension: .yaml/.yml is YAML, anything else is XML.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"Workbench" yaml:"-"`

	// Server configuration
	Server ServerConfig `xml:"Server" yaml:"server"`

	// Remote document QA service
	Service ServiceConfig `xml:"Service" yaml:"service"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage" yaml:"storage"`

	// Workspace lifecycle
	Session SessionConfig `xml:"Session" yaml:"session"`

	// File selection rules
	Upload UploadConfig `xml:"Upload" yaml:"upload"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCORS"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// ServiceConfig locates the document QA service.
type ServiceConfig struct {
	BaseURL        string `xml:"BaseURL" yaml:"baseURL"`
	UploadPath     string `xml:"UploadPath" yaml:"uploadPath"`
	ChatPath       string `xml:"ChatPath" yaml:"chatPath"`
	DocumentsPath  string `xml:"DocumentsPath" yaml:"documentsPath"`
	HealthPath     string `xml:"HealthPath" yaml:"healthPath"`
	TimeoutSeconds int    `xml:"TimeoutSeconds" yaml:"timeoutSeconds"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory" yaml:"dataDirectory"`
	StagingDirectory string `xml:"StagingDirectory" yaml:"stagingDirectory"`
}

// SessionConfig contains workspace lifecycle settings
type SessionConfig struct {
	MaxWorkspaces          int    `xml:"MaxWorkspaces" yaml:"maxWorkspaces"`
	IdleTimeoutMinutes     int    `xml:"IdleTimeoutMinutes" yaml:"idleTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
	Greeting               string `xml:"Greeting" yaml:"greeting"`
}

// UploadConfig contains file selection settings
type UploadConfig struct {
	AcceptedMediaType string `xml:"AcceptedMediaType" yaml:"acceptedMediaType"`
	TypeLabel         string `xml:"TypeLabel" yaml:"typeLabel"`
	FieldName         string `xml:"FieldName" yaml:"fieldName"`
	MaxFileSize       string `xml:"MaxFileSize" yaml:"maxFileSize"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" yaml:"logLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" yaml:"webSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 0,
			IdleTimeout:  120,
			BodyLimit:    "200M",
		},
		Service: ServiceConfig{
			BaseURL:        "http://localhost:8000",
			UploadPath:     "/api/upload",
			ChatPath:       "/api/chat",
			DocumentsPath:  "/api/documents",
			HealthPath:     "/",
			TimeoutSeconds: 120,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			StagingDirectory: "./data/staging",
		},
		Session: SessionConfig{
			MaxWorkspaces:          50,
			IdleTimeoutMinutes:     30,
			CleanupIntervalMinutes: 5,
			Greeting:               "Hello! How can I help you today?",
		},
		Upload: UploadConfig{
			AcceptedMediaType: "application/pdf",
			TypeLabel:         "PDF",
			FieldName:         "files",
			MaxFileSize:       "50M",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from file, writing the defaults there first
// when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Unmarshal over the defaults so omitted settings keep their values.
		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration in the format implied by the file extension.
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte("# Document QA Workbench Configuration\n# This file is auto-generated on first run\n\n")
		content = append(header, output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Document QA Workbench Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves the staging directory along with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.StagingDirectory = filepath.Join(dataDir, "staging")
	}

	if url := os.Getenv("QA_SERVICE_URL"); url != "" {
		c.Service.BaseURL = url
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.StagingDirectory) {
		c.Storage.StagingDirectory = filepath.Join(configDir, c.Storage.StagingDirectory)
	}
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service base URL is required")
	}
	if _, err := bytes.Parse(c.Upload.MaxFileSize); c.Upload.MaxFileSize != "" && err != nil {
		return fmt.Errorf("invalid max file size %q: %w", c.Upload.MaxFileSize, err)
	}
	if _, ok := parseLevel(c.Advanced.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", c.Advanced.LogLevel)
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetStagingDir returns the absolute staging directory path
func (c *AppConfig) GetStagingDir() string {
	return c.Storage.StagingDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetServiceTimeout returns the per-request timeout for the QA service.
func (c *AppConfig) GetServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// GetIdleTimeout returns how long an untouched workspace survives.
func (c *AppConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMinutes) * time.Minute
}

// GetCleanupInterval returns the period of the idle workspace sweep.
func (c *AppConfig) GetCleanupInterval() time.Duration {
	if c.Session.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// GetMaxFileSize returns the staging size limit in bytes; 0 means unlimited.
func (c *AppConfig) GetMaxFileSize() int64 {
	if c.Upload.MaxFileSize == "" {
		return 0
	}
	n, err := bytes.Parse(c.Upload.MaxFileSize)
	if err != nil {
		return 0
	}
	return n
}

// GetLogLevel maps the configured level onto the gommon logger.
func (c *AppConfig) GetLogLevel() log.Lvl {
	lvl, _ := parseLevel(c.Advanced.LogLevel)
	return lvl
}

func parseLevel(s string) (log.Lvl, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG, true
	case "", "info":
		return log.INFO, true
	case "warn", "warning":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	}
	return log.INFO, false
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.StagingDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
