package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	// APISecretKey schützt die Schreib-Endpunkte. Leer = Prüfung deaktiviert
	// (lokale Entwicklung).
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	PubMedBaseURL  string        `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey   string        `envconfig:"PUBMED_API_KEY"`
	PubMedPageSize int           `envconfig:"PUBMED_PAGE_SIZE" default:"100"`
	PubMedDelay    time.Duration `envconfig:"PUBMED_DELAY" default:"334ms"`

	ArxivBaseURL  string        `envconfig:"ARXIV_BASE_URL" default:"https://export.arxiv.org/api/query"`
	ArxivPageSize int           `envconfig:"ARXIV_PAGE_SIZE" default:"100"`
	ArxivDelay    time.Duration `envconfig:"ARXIV_DELAY" default:"3s"`

	ZenodoBaseURL  string        `envconfig:"ZENODO_BASE_URL" default:"https://zenodo.org/api"`
	ZenodoToken    string        `envconfig:"ZENODO_TOKEN"`
	ZenodoPageSize int           `envconfig:"ZENODO_PAGE_SIZE" default:"100"`
	ZenodoDelay    time.Duration `envconfig:"ZENODO_DELAY" default:"500ms"`

	ScopusBaseURL   string        `envconfig:"SCOPUS_BASE_URL" default:"https://api.elsevier.com"`
	ScopusAPIKey    string        `envconfig:"SCOPUS_API_KEY"`
	ScopusInstToken string        `envconfig:"SCOPUS_INST_TOKEN"`
	ScopusPageSize  int           `envconfig:"SCOPUS_PAGE_SIZE" default:"25"`
	ScopusDelay     time.Duration `envconfig:"SCOPUS_DELAY" default:"120ms"`

	// EnabledSources bestimmt, welche Quellen ein Suchlauf abfragt.
	EnabledSources string `envconfig:"ENABLED_SOURCES" default:"pubmed,arxiv,zenodo,scopus"`

	// MaxRecords begrenzt die Trefferzahl pro Quelle und Durchlauf.
	MaxRecords int  `envconfig:"MAX_RECORDS" default:"300"`
	FetchPDFs  bool `envconfig:"FETCH_PDFS" default:"true"`

	// JournalRankingsDir enthält die CSV-Dateien mit den Journal-Rankings.
	JournalRankingsDir string `envconfig:"JOURNAL_RANKINGS_DIR" default:"./rankings"`

	// CronSchedule steuert das periodische Wiederholen aller gespeicherten
	// Suchen. Leer = deaktiviert.
	CronSchedule string `envconfig:"CRON_SCHEDULE"`

	// S3-Spiegelung der geladenen PDFs; aktiv sobald ein Bucket gesetzt ist.
	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	// Eigener Bucket für Datenbank-Backups; leer = S3_BUCKET.
	S3BackupBucket string `envconfig:"S3_BACKUP_BUCKET"`
	KeepBackups    int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Sources liefert die aktivierten Quellen als normalisierte Liste.
func (c *Config) Sources() []string {
	var out []string
	for _, s := range strings.Split(c.EnabledSources, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SourceEnabled prüft, ob eine Quelle aktiviert ist.
func (c *Config) SourceEnabled(name string) bool {
	for _, s := range c.Sources() {
		if s == name {
			return true
		}
	}
	return false
}

// MirrorPDFs gibt an, ob geladene PDFs zusätzlich nach S3 gespiegelt werden.
func (c *Config) MirrorPDFs() bool {
	return c.S3Bucket != ""
}

// BackupBucket liefert den Bucket für Datenbank-Backups und fällt auf den
// PDF-Bucket zurück.
func (c *Config) BackupBucket() string {
	if c.S3BackupBucket != "" {
		return c.S3BackupBucket
	}
	return c.S3Bucket
}

// Validate prüft Abhängigkeiten zwischen Parametern, die envconfig nicht
// ausdrücken kann.
func (c *Config) Validate() error {
	if c.SourceEnabled("scopus") && c.ScopusAPIKey == "" {
		return fmt.Errorf("scopus ist aktiviert, aber SCOPUS_API_KEY fehlt")
	}
	if c.MirrorPDFs() && (c.S3Key == "" || c.S3Secret == "" || c.S3URL == "" || c.S3Region == "") {
		return fmt.Errorf("S3_BUCKET ist gesetzt, aber die übrigen S3-Parameter fehlen")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
