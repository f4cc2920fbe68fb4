package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"internfunnel/internal/domain"
)

// Config models funnel.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		PublicURL   string   `yaml:"public_url"`
		Environment string   `yaml:"environment"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Store struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"store"`
	Auth struct {
		AdminUsername string `yaml:"admin_username"`
		AdminPassword string `yaml:"admin_password"`
		PasswordHash  string `yaml:"password_hash"`
		JWTSecret     string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	ATS struct {
		BaseURL        string `yaml:"base_url"`
		Token          string `yaml:"token"`
		Source         string `yaml:"source"`
		CandidateURL   string `yaml:"candidate_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ats"`
	Interview struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		FallbackURL    string `yaml:"fallback_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"interview"`
	Email struct {
		BaseURL               string `yaml:"base_url"`
		APIKey                string `yaml:"api_key"`
		From                  string `yaml:"from"`
		ReplyTo               string `yaml:"reply_to"`
		SendConfirmation      bool   `yaml:"send_confirmation"`
		SendInterviewComplete bool   `yaml:"send_interview_complete"`
		TimeoutSeconds        int    `yaml:"timeout_seconds"`
	} `yaml:"email"`
	Sheets struct {
		Provider        string `yaml:"provider"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsFile string `yaml:"credentials_file"`
		ExcelPath       string `yaml:"excel_path"`
	} `yaml:"sheets"`
	Signals struct {
		Backend    string `yaml:"backend"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"signals"`
	RateLimit struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
		Burst             int `yaml:"burst"`
		MaxClients        int `yaml:"max_clients"`
	} `yaml:"rate_limit"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Questionnaires struct {
		Quiz   Questionnaire `yaml:"quiz"`
		Survey Questionnaire `yaml:"survey"`
	} `yaml:"questionnaires"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Questionnaire maps question numbers to traits and spreadsheet labels.
type Questionnaire struct {
	Title     string     `yaml:"title"`
	Questions []Question `yaml:"questions"`
}

type Question struct {
	Number int    `yaml:"number"`
	Trait  string `yaml:"trait"`
	Label  string `yaml:"label"`
}

// WebhookConfig is an outbound subscriber for funnel events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with funnel config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "funnel.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML layers raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure. Credentials are not
// required here; their absence surfaces when a collaborator is first used.
func (c *Config) Validate() error {
	switch c.Sheets.Provider {
	case "", "none", "excel", "google":
	default:
		return fmt.Errorf("config.sheets.provider must be one of none, excel, google")
	}
	if c.Sheets.Provider == "google" && c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("config.sheets.spreadsheet_id is required for the google provider")
	}
	switch c.Signals.Backend {
	case "", "memory", "sql":
	default:
		return fmt.Errorf("config.signals.backend must be memory or sql")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("config.log.format must be json or text")
	}
	if c.Auth.AdminPassword != "" && c.Auth.PasswordHash != "" {
		return fmt.Errorf("config.auth: set admin_password or password_hash, not both")
	}
	if err := c.Questionnaires.Quiz.validate("quiz"); err != nil {
		return err
	}
	if err := c.Questionnaires.Survey.validate("survey"); err != nil {
		return err
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

func (q Questionnaire) validate(name string) error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("config.questionnaires.%s has no questions", name)
	}
	seen := make(map[int]bool, len(q.Questions))
	covered := make(map[domain.Trait]bool)
	for _, question := range q.Questions {
		if question.Number <= 0 {
			return fmt.Errorf("config.questionnaires.%s: question number must be positive", name)
		}
		if seen[question.Number] {
			return fmt.Errorf("config.questionnaires.%s: duplicate question %d", name, question.Number)
		}
		seen[question.Number] = true
		trait := domain.Trait(question.Trait)
		if !trait.Valid() {
			return fmt.Errorf("config.questionnaires.%s: question %d has unknown trait %q", name, question.Number, question.Trait)
		}
		covered[trait] = true
	}
	for _, trait := range domain.Traits {
		if !covered[trait] {
			return fmt.Errorf("config.questionnaires.%s: trait %s has no questions", name, trait)
		}
	}
	return nil
}

// Questionnaire returns the definition for a kind.
func (c *Config) Questionnaire(kind domain.QuestionnaireKind) Questionnaire {
	if kind == domain.KindSurvey {
		return c.Questionnaires.Survey
	}
	return c.Questionnaires.Quiz
}

// WebhooksEnabled reports whether any outbound subscriber is active.
func (c *Config) WebhooksEnabled() bool {
	for _, hook := range c.Webhooks {
		if hook.Enabled == nil || *hook.Enabled {
			return true
		}
	}
	return false
}

type envBinding struct {
	key   string
	names []string
}

var stringEnv = []envBinding{
	{"server.addr", []string{"FUNNEL_SERVER_ADDR"}},
	{"server.base_path", []string{"FUNNEL_SERVER_BASE_PATH"}},
	{"server.public_url", []string{"FUNNEL_SERVER_PUBLIC_URL", "NEXT_PUBLIC_BASE_URL"}},
	{"server.environment", []string{"FUNNEL_SERVER_ENVIRONMENT", "ENVIRONMENT"}},
	{"store.workspace", []string{"FUNNEL_STORE_WORKSPACE"}},
	{"auth.admin_username", []string{"FUNNEL_AUTH_ADMIN_USERNAME", "ADMIN_USERNAME"}},
	{"auth.admin_password", []string{"FUNNEL_AUTH_ADMIN_PASSWORD", "ADMIN_PASSWORD"}},
	{"auth.password_hash", []string{"FUNNEL_AUTH_PASSWORD_HASH"}},
	{"auth.jwt_secret", []string{"FUNNEL_AUTH_JWT_SECRET", "JWT_SECRET"}},
	{"ats.base_url", []string{"FUNNEL_ATS_BASE_URL"}},
	{"ats.token", []string{"FUNNEL_ATS_TOKEN", "MANATAL_API_TOKEN"}},
	{"interview.base_url", []string{"FUNNEL_INTERVIEW_BASE_URL"}},
	{"interview.api_key", []string{"FUNNEL_INTERVIEW_API_KEY", "HIREFLIX_API_KEY"}},
	{"interview.fallback_url", []string{"FUNNEL_INTERVIEW_FALLBACK_URL"}},
	{"email.base_url", []string{"FUNNEL_EMAIL_BASE_URL"}},
	{"email.api_key", []string{"FUNNEL_EMAIL_API_KEY", "RESEND_API_KEY"}},
	{"email.from", []string{"FUNNEL_EMAIL_FROM"}},
	{"sheets.provider", []string{"FUNNEL_SHEETS_PROVIDER"}},
	{"sheets.spreadsheet_id", []string{"FUNNEL_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_ID"}},
	{"sheets.credentials_file", []string{"FUNNEL_SHEETS_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"}},
	{"sheets.excel_path", []string{"FUNNEL_SHEETS_EXCEL_PATH"}},
	{"signals.backend", []string{"FUNNEL_SIGNALS_BACKEND"}},
	{"log.level", []string{"FUNNEL_LOG_LEVEL"}},
	{"log.format", []string{"FUNNEL_LOG_FORMAT"}},
}

// ApplyEnv overrides file values with environment variables bound through v.
// Both FUNNEL_-prefixed names and the unprefixed names of earlier deployments
// are honored, prefixed first.
func (c *Config) ApplyEnv(v *viper.Viper) error {
	targets := map[string]*string{
		"server.addr":             &c.Server.Addr,
		"server.base_path":        &c.Server.BasePath,
		"server.public_url":       &c.Server.PublicURL,
		"server.environment":      &c.Server.Environment,
		"store.workspace":         &c.Store.Workspace,
		"auth.admin_username":     &c.Auth.AdminUsername,
		"auth.admin_password":     &c.Auth.AdminPassword,
		"auth.password_hash":      &c.Auth.PasswordHash,
		"auth.jwt_secret":         &c.Auth.JWTSecret,
		"ats.base_url":            &c.ATS.BaseURL,
		"ats.token":               &c.ATS.Token,
		"interview.base_url":      &c.Interview.BaseURL,
		"interview.api_key":       &c.Interview.APIKey,
		"interview.fallback_url":  &c.Interview.FallbackURL,
		"email.base_url":          &c.Email.BaseURL,
		"email.api_key":           &c.Email.APIKey,
		"email.from":              &c.Email.From,
		"sheets.provider":         &c.Sheets.Provider,
		"sheets.spreadsheet_id":   &c.Sheets.SpreadsheetID,
		"sheets.credentials_file": &c.Sheets.CredentialsFile,
		"sheets.excel_path":       &c.Sheets.ExcelPath,
		"signals.backend":         &c.Signals.Backend,
		"log.level":               &c.Log.Level,
		"log.format":              &c.Log.Format,
	}
	for _, b := range stringEnv {
		args := append([]string{b.key}, b.names...)
		if err := v.BindEnv(args...); err != nil {
			return err
		}
		if s := strings.TrimSpace(v.GetString(b.key)); s != "" {
			*targets[b.key] = s
		}
	}
	for key, dst := range map[string]*bool{
		"email.send_confirmation":       &c.Email.SendConfirmation,
		"email.send_interview_complete": &c.Email.SendInterviewComplete,
	} {
		if err := v.BindEnv(key, "FUNNEL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return err
		}
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	return c.Validate()
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: ""
  public_url: http://localhost:8080
  environment: production
  cors_origins: ["*"]

store:
  workspace: .

auth:
  admin_username: admin

ats:
  base_url: https://api.manatal.com/open/v3
  source: Global Internship Initiative Website V2
  candidate_url: https://app.manatal.com/candidates/%s
  timeout_seconds: 15

interview:
  base_url: https://api.hireflix.com/me
  timeout_seconds: 15

email:
  base_url: https://api.resend.com
  from: Global Internship Initiative <noreply@globalinternshipinitiative.com>
  reply_to: info@globalinternshipinitiative.com
  send_confirmation: true
  send_interview_complete: true
  timeout_seconds: 10

sheets:
  provider: none
  excel_path: questionnaire-results.xlsx

signals:
  backend: memory
  ttl_minutes: 60

rate_limit:
  requests_per_minute: 120
  burst: 30
  max_clients: 4096

log:
  level: info
  format: json

questionnaires:
  quiz:
    title: Personality Quiz
    questions:
      - {number: 1, trait: extraversion, label: Networking}
      - {number: 2, trait: conscientiousness, label: Planning}
      - {number: 3, trait: agreeableness, label: Collaboration}
      - {number: 4, trait: openness, label: Learning}
      - {number: 5, trait: emotionalStability, label: Stress Management}
      - {number: 6, trait: conscientiousness, label: Initiative}
      - {number: 7, trait: agreeableness, label: Feedback}
      - {number: 8, trait: openness, label: Adaptability}
      - {number: 9, trait: extraversion, label: Social Energy}
      - {number: 10, trait: emotionalStability, label: Criticism Handling}
  survey:
    title: Personality Survey
    questions:
      - {number: 1, trait: extraversion, label: Networking Events}
      - {number: 2, trait: extraversion, label: Group Energy}
      - {number: 3, trait: extraversion, label: Leading Conversations}
      - {number: 4, trait: extraversion, label: Social Environments}
      - {number: 5, trait: extraversion, label: Initiating Contact}
      - {number: 6, trait: extraversion, label: Presenting Ideas}
      - {number: 7, trait: agreeableness, label: Team Harmony}
      - {number: 8, trait: agreeableness, label: Offering Help}
      - {number: 9, trait: agreeableness, label: Valuing Opinions}
      - {number: 10, trait: agreeableness, label: Patience}
      - {number: 11, trait: agreeableness, label: Common Ground}
      - {number: 12, trait: agreeableness, label: Mentoring}
      - {number: 13, trait: conscientiousness, label: Deadlines}
      - {number: 14, trait: conscientiousness, label: Planning}
      - {number: 15, trait: conscientiousness, label: Accuracy}
      - {number: 16, trait: conscientiousness, label: Commitments}
      - {number: 17, trait: conscientiousness, label: Organization}
      - {number: 18, trait: conscientiousness, label: Career Goals}
      - {number: 19, trait: openness, label: Learning}
      - {number: 20, trait: openness, label: Adapting to Change}
      - {number: 21, trait: openness, label: Innovation}
      - {number: 22, trait: openness, label: Curiosity}
      - {number: 23, trait: openness, label: Diverse Perspectives}
      - {number: 24, trait: openness, label: Experimentation}
      - {number: 25, trait: emotionalStability, label: Calm Under Pressure}
      - {number: 26, trait: emotionalStability, label: Managing Anxiety}
      - {number: 27, trait: emotionalStability, label: Resilience}
      - {number: 28, trait: emotionalStability, label: Focus}
      - {number: 29, trait: emotionalStability, label: Handling Criticism}
      - {number: 30, trait: emotionalStability, label: Positivity}

webhooks: []
`
