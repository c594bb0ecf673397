package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"imapntfy/internal/secret"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	AppName        = "imapntfy"
	DefaultMailbox = "INBOX"

	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityInsecure = "insecure"

	SearchAll    = "all"
	SearchUnseen = "unseen"

	keyringPrefix = "keyring:"
)

// Error marks a configuration problem. It is always fatal at startup.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type WebPush struct {
	Endpoint        string `mapstructure:"endpoint"`
	P256dh          string `mapstructure:"p256dh"`
	Auth            string `mapstructure:"auth"`
	VapidPublicKey  string `mapstructure:"vapid_public_key"`
	VapidPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
}

func (w *WebPush) HasEncryption() bool {
	return w.P256dh != "" && w.Auth != "" && w.VapidPrivateKey != ""
}

// Account describes one watched mailbox and where its notifications go.
// It is read-only once Load returns.
type Account struct {
	Name     string `mapstructure:"name"`
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
	Security string `mapstructure:"security"`
	Search   string `mapstructure:"search"`

	NtfyURL          string `mapstructure:"ntfy_url"`
	NtfyTopic        string `mapstructure:"ntfy_topic"`
	NtfyClickableURL string `mapstructure:"ntfy_clickable_url"`
	NtfyToken        string `mapstructure:"ntfy_token"`

	TelegramChatID int64    `mapstructure:"telegram_chat_id"`
	WebPush        *WebPush `mapstructure:"webpush"`
}

func (a *Account) Address() string {
	return fmt.Sprintf("%s:%d", a.Server, a.Port)
}

func (a *Account) HasTelegram() bool {
	return a.TelegramChatID != 0
}

func (a *Account) HasWebPush() bool {
	return a.WebPush != nil && a.WebPush.Endpoint != ""
}

type WatchConfig struct {
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	EscalationThreshold time.Duration `mapstructure:"escalation_threshold"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
}

type StatusConfig struct {
	Listen    string `mapstructure:"listen"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"`
}

func (s StatusConfig) Enabled() bool {
	return s.Listen != ""
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

func (h HistoryConfig) Enabled() bool {
	return h.Path != ""
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type Config struct {
	VerboseLogging bool           `mapstructure:"verbose_logging"`
	Watch          WatchConfig    `mapstructure:"watch"`
	Status         StatusConfig   `mapstructure:"status"`
	History        HistoryConfig  `mapstructure:"history"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	Accounts       []Account      `mapstructure:"accounts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("verbose_logging", false)
	v.SetDefault("watch.initial_backoff", time.Second)
	v.SetDefault("watch.escalation_threshold", 256*time.Second)
	v.SetDefault("watch.idle_timeout", 5*time.Minute)
	v.SetDefault("watch.dial_timeout", 30*time.Second)
	v.SetDefault("status.listen", "")
	v.SetDefault("status.api_key", "")
	v.SetDefault("status.rate_limit", 60)
	v.SetDefault("history.path", "")
	v.SetDefault("telegram.bot_token", "")
}

// PasswordLookup resolves "keyring:" passwords. Tests replace it.
var PasswordLookup = func(user string) (string, error) {
	return keyring.Get(AppName, user)
}

// Load reads a TOML file, applies defaults and IMAPNTFY_* environment
// overrides for the global sections, resolves sealed and keyring passwords,
// and validates the result. Every failure is a *Error.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, &Error{Err: errors.New("no config file given")}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("IMAPNTFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("reading: %w", err)}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parsing: %w", err)}
	}

	for i := range cfg.Accounts {
		applyAccountDefaults(&cfg.Accounts[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	masterKey := os.Getenv(secret.MasterKeyEnv)
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		pw, err := resolvePassword(acct, masterKey)
		if err != nil {
			return nil, &Error{Path: path, Err: fmt.Errorf("account %q: %w", acct.Name, err)}
		}
		acct.Password = pw
	}

	return cfg, nil
}

func applyAccountDefaults(a *Account) {
	if a.Mailbox == "" {
		a.Mailbox = DefaultMailbox
	}
	if a.Security == "" {
		a.Security = SecurityTLS
	}
	if a.Search == "" {
		a.Search = SearchAll
	}
	if a.Port == 0 {
		switch a.Security {
		case SecurityTLS:
			a.Port = 993
		default:
			a.Port = 143
		}
	}
	a.NtfyURL = strings.TrimRight(a.NtfyURL, "/")
}

func resolvePassword(a *Account, masterKey string) (string, error) {
	switch {
	case secret.IsSealed(a.Password):
		pw, err := secret.Open(masterKey, a.Password)
		if err != nil {
			return "", fmt.Errorf("opening sealed password: %w", err)
		}
		return pw, nil
	case strings.HasPrefix(a.Password, keyringPrefix):
		user := strings.TrimPrefix(a.Password, keyringPrefix)
		if user == "" {
			user = a.Username
		}
		pw, err := PasswordLookup(user)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return "", fmt.Errorf("password for %q not found in keyring", user)
			}
			return "", fmt.Errorf("reading keyring: %w", err)
		}
		return pw, nil
	default:
		return a.Password, nil
	}
}

func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return errors.New("at least one [[accounts]] entry is required")
	}

	if c.Watch.InitialBackoff <= 0 {
		return errors.New("watch.initial_backoff must be positive")
	}
	if c.Watch.EscalationThreshold <= 0 {
		return errors.New("watch.escalation_threshold must be positive")
	}
	if c.Watch.IdleTimeout <= 0 {
		return errors.New("watch.idle_timeout must be positive")
	}
	if c.Watch.DialTimeout <= 0 {
		return errors.New("watch.dial_timeout must be positive")
	}
	if c.Status.Enabled() && c.Status.RateLimit <= 0 {
		return errors.New("status.rate_limit must be positive")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if err := a.validate(); err != nil {
			name := a.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return fmt.Errorf("account %s: %w", name, err)
		}
		if seen[a.Name] {
			return fmt.Errorf("account %s: duplicate name", a.Name)
		}
		seen[a.Name] = true

		if a.HasTelegram() && c.Telegram.BotToken == "" {
			return fmt.Errorf("account %s: telegram_chat_id requires telegram.bot_token", a.Name)
		}
	}

	return nil
}

func (a *Account) validate() error {
	switch {
	case a.Name == "":
		return errors.New("name is required")
	case a.Server == "":
		return errors.New("server is required")
	case a.Port < 1 || a.Port > 65535:
		return fmt.Errorf("port %d out of range", a.Port)
	case a.Username == "":
		return errors.New("username is required")
	case a.Password == "":
		return errors.New("password is required")
	case a.NtfyTopic == "":
		return errors.New("ntfy_topic is required")
	}

	if err := validateHTTPURL("ntfy_url", a.NtfyURL); err != nil {
		return err
	}
	if a.NtfyClickableURL != "" {
		if _, err := url.Parse(a.NtfyClickableURL); err != nil {
			return fmt.Errorf("ntfy_clickable_url: %w", err)
		}
	}

	switch a.Security {
	case SecurityTLS, SecurityStartTLS, SecurityInsecure:
	default:
		return fmt.Errorf("security %q must be one of tls, starttls, insecure", a.Security)
	}

	switch a.Search {
	case SearchAll, SearchUnseen:
	default:
		return fmt.Errorf("search %q must be one of all, unseen", a.Search)
	}

	if a.WebPush != nil && a.WebPush.Endpoint != "" {
		if err := validateHTTPURL("webpush.endpoint", a.WebPush.Endpoint); err != nil {
			return err
		}
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an http(s) URL", field, raw)
	}
	return nil
}
