// Package config loads the mangasync application configuration.
//
// Configuration comes from three layers, later ones winning:
//
//  1. Built-in defaults (Default)
//  2. A YAML file (Load)
//  3. Environment variables: MANGASYNC_DB_PATH, MANGASYNC_CATALOG_PATH and
//     LOG_LEVEL
//
// The merged result is checked with struct validation tags and the
// telemetry package's own Validate.
//
// Example file:
//
//	database:
//	  path: /var/lib/mangasync/library.db
//	  busy_timeout: 5s
//	catalog:
//	  path: /etc/mangasync/catalog.yaml
//	  watch: true
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	    listen_address: ":9090"
package config
