package model

import "time"

// Config holds the full runtime configuration
type Config struct {
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Buckets    []BucketConfig   `yaml:"buckets" mapstructure:"buckets"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Digest     DigestConfig     `yaml:"digest" mapstructure:"digest"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// SourcesConfig selects and parameterizes feed sources
type SourcesConfig struct {
	Lookback        time.Duration `yaml:"lookback" mapstructure:"lookback"`                 // How far back a fetch window reaches
	ArxivCategories []string      `yaml:"arxiv_categories" mapstructure:"arxiv_categories"` // arXiv Atom API categories (empty disables)
	ArxivListings   []string      `yaml:"arxiv_listings" mapstructure:"arxiv_listings"`     // arXiv HTML listing URLs (empty disables)
	BiorxivServers  []string      `yaml:"biorxiv_servers" mapstructure:"biorxiv_servers"`   // "biorxiv" and/or "medrxiv" (empty disables)
	PubmedQueries   []string      `yaml:"pubmed_queries" mapstructure:"pubmed_queries"`     // PubMed esearch query terms (empty disables)
	PubmedAPIKey    string        `yaml:"-" mapstructure:"-"`                               // From NCBI_API_KEY, never persisted
}

// FilterConfig drives the heuristic pre-filter. The filter is deliberately
// conservative: boost terms override the block list, and greylisted papers
// survive when a rescue keyword is present. Tightening these lists trades
// classifier cost against the risk of dropping borderline papers; that
// trade-off is the operator's to make, not hidden behavior.
type FilterConfig struct {
	MinAbstractLen int                 `yaml:"min_abstract_len" mapstructure:"min_abstract_len"`
	BoostTerms     map[string][]string `yaml:"boost_terms" mapstructure:"boost_terms"` // Levels: high, medium, low
	DropTerms      []string            `yaml:"drop_terms" mapstructure:"drop_terms"`
	GreylistTerms  []string            `yaml:"greylist_terms" mapstructure:"greylist_terms"`
	RescueTerms    []string            `yaml:"rescue_terms" mapstructure:"rescue_terms"` // Keep a greylisted paper if present
}

// BucketConfig defines one bucket of the fixed category enumeration
type BucketConfig struct {
	Name     string   `yaml:"name" mapstructure:"name"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// ClassifierConfig parameterizes the external model calls
type ClassifierConfig struct {
	Model             string        `yaml:"model" mapstructure:"model"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"` // Override for OpenAI-compatible endpoints
	APIKey            string        `yaml:"-" mapstructure:"-"`               // From OPENAI_API_KEY, never persisted
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"` // Retry cap for transient errors
	BaseDelay         time.Duration `yaml:"base_delay" mapstructure:"base_delay"`     // First backoff delay, doubles per attempt
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Workers           int           `yaml:"workers" mapstructure:"workers"` // Parallel classification (1 = sequential)
}

// DigestConfig drives assembly
type DigestConfig struct {
	MinScore        int `yaml:"min_score" mapstructure:"min_score"`                 // Papers below never appear in the digest
	NoteworthyScore int `yaml:"noteworthy_score" mapstructure:"noteworthy_score"`   // Floor for the also-noteworthy section
	TopPicks        int `yaml:"top_picks" mapstructure:"top_picks"`
	PerBucketCap    int `yaml:"per_bucket_cap" mapstructure:"per_bucket_cap"` // 0 = unlimited
}

// EmailConfig parameterizes digest delivery
type EmailConfig struct {
	Endpoint      string   `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey        string   `yaml:"-" mapstructure:"-"` // From RESEND_API_KEY, never persisted
	From          string   `yaml:"from" mapstructure:"from"`
	FromName      string   `yaml:"from_name" mapstructure:"from_name"`
	Recipients    []string `yaml:"recipients" mapstructure:"recipients"`
	SubjectPrefix string   `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// StoreConfig locates the dedup ledger
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // SQLite file path
}

// HTTPConfig applies to all outbound feed requests
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	CacheTTL   time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheDir   string        `yaml:"cache_dir" mapstructure:"cache_dir"` // Empty disables the disk layer
	HTTPProxy  string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy" mapstructure:"https_proxy"`
}

// LoggingConfig selects log verbosity
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the built-in defaults. Every field the pipeline reads
// has a sane value here; the config file and flags only override.
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			Lookback:        36 * time.Hour,
			ArxivCategories: []string{"cs.LG", "q-bio.QM"},
			BiorxivServers:  []string{"biorxiv", "medrxiv"},
		},
		Filter: FilterConfig{
			MinAbstractLen: 120,
			BoostTerms: map[string][]string{
				"high":   {"clinical trial", "drug discovery", "protein folding", "brain-computer interface"},
				"medium": {"medical imaging", "biomarker", "diagnosis", "EEG"},
				"low":    {"healthcare", "patient", "clinical"},
			},
			DropTerms:     []string{"cryptocurrency", "blockchain", "recommender system"},
			GreylistTerms: []string{"mouse model", "in vitro", "cell culture"},
			RescueTerms:   []string{"transferable", "foundation model", "human translation"},
		},
		Buckets: []BucketConfig{
			{Name: "Diagnostics & Imaging", Keywords: []string{"medical imaging", "radiology", "diagnosis", "segmentation"}},
			{Name: "Drug Discovery", Keywords: []string{"drug discovery", "compound", "molecular", "protein"}},
			{Name: "Neurotech", Keywords: []string{"brain-computer interface", "EEG", "fNIRS", "neural decoding"}},
			{Name: "Clinical NLP", Keywords: []string{"clinical notes", "electronic health record", "medical LLM"}},
		},
		Classifier: ClassifierConfig{
			Model:             "gpt-4o-mini",
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			BaseDelay:         2 * time.Second,
			RequestsPerSecond: 1,
			Workers:           1,
		},
		Digest: DigestConfig{
			MinScore:        50,
			NoteworthyScore: 60,
			TopPicks:        3,
			PerBucketCap:    0,
		},
		Email: EmailConfig{
			Endpoint:      "https://api.resend.com/emails",
			From:          "digest@example.org",
			FromName:      "Paperboy",
			SubjectPrefix: "Research Digest",
		},
		Store: StoreConfig{
			Path: "./paperboy.db",
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "Paperboy/0.1 (+https://github.com/avolkov/paperboy)",
			CacheTTL:  15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
