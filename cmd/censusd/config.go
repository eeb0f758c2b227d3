package main

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/netstatehq/zk-census/merkle"
)

type Config struct {
	Port          int
	DataDir       string
	TreeDepth     int
	VKPath        string
	SignerKeyPath string
	ScopeDuration int64
}

// LoadConfig reads everything from the environment once at startup.
func LoadConfig() *Config {
	cfg := &Config{
		Port:          8080,
		DataDir:       "./data",
		TreeDepth:     merkle.DefaultDepth,
		ScopeDuration: 7 * 24 * 3600,
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("CENSUS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CENSUS_TREE_DEPTH"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			cfg.TreeDepth = d
		}
	}
	if v := os.Getenv("CENSUS_VK_PATH"); v != "" {
		cfg.VKPath = v
	} else {
		cfg.VKPath = filepath.Join(cfg.DataDir, "verification_key.bin")
	}
	if v := os.Getenv("CENSUS_SIGNER_KEY_PATH"); v != "" {
		cfg.SignerKeyPath = v
	} else {
		cfg.SignerKeyPath = filepath.Join(cfg.DataDir, "verifier_keypair.hex")
	}
	if v := os.Getenv("CENSUS_SCOPE_DURATION"); v != "" {
		if d, err := strconv.ParseInt(v, 10, 64); err == nil && d > 0 {
			cfg.ScopeDuration = d
		}
	}
	return cfg
}
