package config

import "time"

const (
	defaultWriteLockTimeout = 5 * time.Second
	defaultOpenTimeout      = 10 * time.Second

	defaultFuzzyPrefixLength = 1
)

// DefaultSearchFields are the text fields searched when a request names none.
var DefaultSearchFields = []string{"pref_label", "forename_alt_labels", "surname_alt_labels"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/personae/data/db/persons.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/personae/data/index"
	}
	if cfg.Index.WriteLockTimeout == "" {
		cfg.Index.WriteLockTimeout = defaultWriteLockTimeout.String()
	}
	if cfg.Index.OpenTimeout == "" {
		cfg.Index.OpenTimeout = defaultOpenTimeout.String()
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 100
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 1000
	}
	if len(cfg.Search.Fields) == 0 {
		cfg.Search.Fields = append([]string(nil), DefaultSearchFields...)
	}
}
