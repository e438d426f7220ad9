package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-ini/ini"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

type ZeroLag struct {
	QueueSize      int
	OverflowPolicy hid.OverflowPolicy
	ProfileDir     string
	DefaultProfile string
	StatusRate     time.Duration
	BenchmarkFile  string
	MacroDir       string
}

type ZeroLagConfig struct {
	ZeroLag ZeroLag
}

func LoadZeroLagConfig(path string) ZeroLagConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	cfg, err := ini.Load(data)
	if err != nil {
		panic(err)
	}

	var c ZeroLagConfig

	section, _ := cfg.GetSection("zerolag")

	queueSize, _ := section.GetKey("queue_size")
	i, err := queueSize.Int()
	if err != nil {
		panic(err)
	}
	c.ZeroLag.QueueSize = i

	overflow, _ := section.GetKey("overflow_policy")
	switch v := overflow.Value(); v {
	case "drop-oldest":
		c.ZeroLag.OverflowPolicy = hid.DropOldest
	case "drop-newest":
		c.ZeroLag.OverflowPolicy = hid.DropNewest
	default:
		panic(fmt.Sprintf("unknown overflow policy: %s", v))
	}

	profileDir, _ := section.GetKey("profile_dir")
	c.ZeroLag.ProfileDir = profileDir.String()

	defaultProfile, _ := section.GetKey("default_profile")
	c.ZeroLag.DefaultProfile = defaultProfile.String()

	statusRate, _ := section.GetKey("status_rate")
	i, err = statusRate.Int()
	if err != nil {
		panic(err)
	}
	c.ZeroLag.StatusRate = time.Second * time.Duration(i)

	benchmarkFile, _ := section.GetKey("benchmark_file")
	c.ZeroLag.BenchmarkFile = benchmarkFile.String()

	macroDir, _ := section.GetKey("macro_dir")
	c.ZeroLag.MacroDir = macroDir.String()

	return c
}

//go:embed zerolag-config/zerolag.config
//go:embed zerolag-config/profiles/*
var templateConfig embed.FS

const configDir = "zerolag-config"

// createConfigDirectoryIfNeeded materializes the embedded config tree on
// first run. Existing files stay intact.
func createConfigDirectoryIfNeeded() error {
	cdir, err := os.OpenFile(configDir, os.O_RDONLY, 0)
	if err == nil {
		cdir.Close()
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot open config directory: %v", err)
	}
	log.Info("config not exist, generating tree...", logger.Info)

	err = fs.WalkDir(templateConfig, configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := os.MkdirAll(filepath.FromSlash(path), 0o777); err != nil {
				return fmt.Errorf("cannot create \"%s\" directory: %w", path, err)
			}
			return nil
		}

		data, err := fs.ReadFile(templateConfig, path)
		if err != nil {
			return fmt.Errorf("cannot read \"%s\" template file: %w", path, err)
		}

		if err := os.WriteFile(filepath.FromSlash(path), data, 0o666); err != nil {
			return fmt.Errorf("cannot write data into \"%s\" file: %w", path, err)
		}

		log.Info(fmt.Sprintf("Created \"%s\" file", path), logger.Debug)
		return nil
	})
	if err != nil {
		return fmt.Errorf("config generation failed: %w", err)
	}

	log.Info("config generation done", logger.Info)
	return nil
}
