package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(nil); !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9000")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load([]string{"--port", "9100"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("flag should override env, got port %q", cfg.Port)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("TokenTTL = %s, want 2h", cfg.TokenTTL)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if cfg.MinioBucket != "avatars" {
		t.Errorf("MinioBucket default = %q", cfg.MinioBucket)
	}
}

func TestLoad_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	if _, err := Load([]string{"--token-ttl", "0s"}); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	if _, err := Load([]string{"--nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
