// Package config handles configuration loading for metrosha-gateway.
//
// # Configuration File
//
// Default location:
//
//  1. Path from METROSHA_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/metrosha/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${METROSHA_JWT_SECRET}"
//
// Unset variables expand to an empty string.
//
// # Example
//
//	environment: prod            # dev, prod
//	server:
//	  http_addr: ":8000"
//	database:
//	  driver: sqlite             # sqlite, postgres
//	  dsn: "/var/lib/metrosha/gateway.db"
//	auth:
//	  jwt_secret: "${METROSHA_JWT_SECRET}"
//	  algorithm: HS256           # HS256, HS384, HS512
//	  token_ttl: "24h"
//	completion:
//	  credentials: "${GIGACHAT_CREDENTIALS}"
//	  scope: GIGACHAT_API_PERS
//	  timeout: "60s"
//	logging:
//	  level: info                # debug, info, warn, error
//	  format: text               # text, json
//	metrics:
//	  enabled: true
//	  path: /metrics
//
// In prod the JWT secret must be at least 32 bytes and
// completion.insecure_skip_verify is rejected.
package config
