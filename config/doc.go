// Package config loads medrag settings from a YAML file, a .env file and
// MEDRAG_* environment variables.
//
// Precedence, highest first: environment, config file, defaults. Nested keys
// map to variables by upper-casing and replacing dots with underscores, so
// neo4j.password is read from MEDRAG_NEO4J_PASSWORD.
package config
