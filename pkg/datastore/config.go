package datastore

import (
	"fmt"
	"os"
)

// Backend credentials live here and nowhere else. The rest of the code
// works against the Facade interfaces and a per-backend enabled flag.

type qdrantConfig struct {
	Host       string
	Port       string
	Collection string
}

type neo4jConfig struct {
	URI      string
	Username string
	Password string
}

type postgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func loadQdrantConfig() qdrantConfig {
	return qdrantConfig{
		Host:       envOr("QDRANT_HOST", "localhost"),
		Port:       envOr("QDRANT_PORT", "6334"),
		Collection: envOr("QDRANT_COLLECTION", "verwaltungsrecht"),
	}
}

func loadNeo4jConfig() neo4jConfig {
	return neo4jConfig{
		URI:      envOr("NEO4J_URI", "bolt://localhost:7687"),
		Username: envOr("NEO4J_USERNAME", "neo4j"),
		Password: os.Getenv("NEO4J_PASSWORD"),
	}
}

func loadPostgresConfig() postgresConfig {
	return postgresConfig{
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     envOr("POSTGRES_PORT", "5432"),
		User:     envOr("POSTGRES_USER", "postgres"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: envOr("POSTGRES_DB", "amtlich"),
	}
}

func (c postgresConfig) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
