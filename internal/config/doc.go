// Package config handles configuration loading for maps-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, then overlaid with a fixed set of environment overrides. Every
// field has a default, so the gateway runs without any file at all.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from MAPS_GATEWAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/maps-gateway/config.yaml, if present
//
// Files ending in .toml are parsed as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	maps:
//	  api_key: "${YANDEX_MAPS_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Environment Overrides
//
// These variables win over file values:
//
//	MCP_TRANSPORT               mode (stdio or http)
//	HOST, PORT                  server.host, server.port
//	YANDEX_MAPS_API_KEY         maps.api_key
//	YANDEX_STATIC_MAPS_API_KEY  maps.static_api_key
//	LOG_LEVEL                   logging.level
//	MAPS_GATEWAY_JWT_SECRET     auth.jwt_secret
//	TS_AUTHKEY                  tailscale.auth_key (only when unset in the file)
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  keepalive_interval: "30s"
//	  shutdown_timeout: "5s"
//	maps:
//	  timeout: "10s"
//	  cache_ttl: "10m"
//
// # Configuration Sections
//
//	mode: http
//	server:
//	  host: "0.0.0.0"
//	  port: 3000
//	  session_queue_size: 64
//	maps:
//	  geocoder_url: "https://geocode-maps.yandex.ru/1.x/"
//	  static_url: "https://static-maps.yandex.ru/v1"
//	  cache_size: 1000
//	  rate_limit: 10
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text, json
//	auth:
//	  jwt_secret: ""   # empty disables bearer auth
//	tailscale:
//	  enabled: false
//	  hostname: "maps-gateway"
//	  ephemeral: false
package config
