// Package config loads and validates Watson IoT client configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with WIOTP_* environment variables
//   - Validation of identity and credentials
//   - Deriving connection values (client id, broker URL, TLS)
//
// Security Considerations:
//   - Tokens and API keys should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Placeholder credentials are rejected, never substituted
//
// A configuration without credentials whose organisation resolves to
// "quickstart" connects to the unauthenticated quickstart service over
// plain TCP.
//
// Usage:
//
//	cfg, err := config.Load("wiotp.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.BrokerURL())
package config
