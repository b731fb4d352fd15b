// Package config provides configuration loading for pursuit-gateway.
//
// Configuration is read from a YAML file. Environment variables in the
// form ${VAR_NAME} are expanded before parsing, which keeps secrets
// (upstream client secret, token/cookie secrets, database DSN) out of
// the file itself:
//
//	server:
//	  http_addr: ":8080"
//	  external_url: "https://mcp.example.com"
//	database:
//	  driver: sqlite
//	  path: /var/lib/pursuit/gateway.db
//	upstream:
//	  client_id: ${GOOGLE_CLIENT_ID}
//	  client_secret: ${GOOGLE_CLIENT_SECRET}
//	  hosted_domain: example.com
//	auth:
//	  token_secret: ${TOKEN_SECRET}
//	  cookie_secret: ${COOKIE_SECRET}
//	  token_ttl: 1h
//	logging:
//	  level: info
//	  format: json
//
// Durations are written as Go duration strings ("10m", "1h") and parsed
// at load time. Load applies defaults (Google OAuth endpoints, sqlite
// driver, 1h token TTL) and then validates; a config that fails
// validation is rejected with a message naming the offending field.
package config
