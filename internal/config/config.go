package config

import (
    "os"
    "strconv"
)

type Config struct {
    Port       string
    DBHost     string
    DBPort     string
    DBUser     string
    DBPassword string
    DBName     string
    DBSSLMode  string

    JWTSecret    string
    JWTExpiresIn string // minutes

    AdminEmail    string
    AdminPassword string
    AdminFullName string

    // Credential policy
    LinkTokenTTLHours      int
    CodeGraceBeforeMinutes int
    CodeGraceAfterMinutes  int
}

func Load() *Config {
    return &Config{
        Port:       getenv("PORT", "8080"),
        DBHost:     getenv("DB_HOST", "localhost"),
        DBPort:     getenv("DB_PORT", "5432"),
        DBUser:     getenv("DB_USER", "postgres"),
        DBPassword: getenv("DB_PASSWORD", "postgres"),
        DBName:     getenv("DB_NAME", "emargement_db"),
        DBSSLMode:  getenv("DB_SSLMODE", "disable"),

        JWTSecret:    getenv("JWT_SECRET", "supersecret_change_me"),
        JWTExpiresIn: getenv("JWT_EXPIRES_IN", "60"),

        AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
        AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
        AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),

        LinkTokenTTLHours:      getenvInt("LINK_TOKEN_TTL_HOURS", 24),
        CodeGraceBeforeMinutes: getenvInt("CODE_GRACE_BEFORE_MINUTES", 15),
        CodeGraceAfterMinutes:  getenvInt("CODE_GRACE_AFTER_MINUTES", 15),
    }
}

func getenv(key, fallback string) string {
    v := os.Getenv(key)
    if v == "" {
        return fallback
    }
    return v
}

func getenvInt(key string, fallback int) int {
    v := os.Getenv(key)
    if v == "" {
        return fallback
    }
    n, err := strconv.Atoi(v)
    if err != nil || n <= 0 {
        return fallback
    }
    return n
}
