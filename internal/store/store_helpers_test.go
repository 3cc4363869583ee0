package store

import "github.com/sells-group/enrichment-worker/internal/config"

func configFor(driver, url string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: url}
}
