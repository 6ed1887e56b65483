// Copyright 2024-2026 Aiku AI

package stickerbot

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bot configuration.
type Config struct {
	CredentialDir      string        `yaml:"credential_dir"`
	ScratchDir         string        `yaml:"scratch_dir"`
	TargetGroup        string        `yaml:"target_group"`
	SelfMessagePrefix  string        `yaml:"self_message_prefix"`
	DeviceName         string        `yaml:"device_name"`
	FetchLatestVersion bool          `yaml:"fetch_latest_version"`
	MaxConcurrentJobs  int           `yaml:"max_concurrent_jobs"`
	QueueSize          int           `yaml:"queue_size"`
	GroupNameTTL       time.Duration `yaml:"group_name_ttl"`
	MaxStartupFailures int           `yaml:"max_startup_failures"`

	Downloads DownloadsConfig `yaml:"downloads"`
	Sticker   StickerConfig   `yaml:"sticker"`
	Video     VideoConfig     `yaml:"video"`
	QR        QRConfig        `yaml:"qr"`

	Logging zeroconfig.Config `yaml:"logging"`
}

type DownloadsConfig struct {
	ImageTimeout time.Duration `yaml:"image_timeout"`
	VideoTimeout time.Duration `yaml:"video_timeout"`
}

type StickerConfig struct {
	Size     int  `yaml:"size"`
	Quality  int  `yaml:"quality"`
	Lossless bool `yaml:"lossless"`
}

type VideoConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	ClipSeconds int    `yaml:"clip_seconds"`
	FPS         int    `yaml:"fps"`
	FrameWidth  int    `yaml:"frame_width"`
}

type QRConfig struct {
	Terminal bool   `yaml:"terminal"`
	HTTPAddr string `yaml:"http_addr"`
}

// PostProcess validates the loaded values.
func (c *Config) PostProcess() error {
	var errs []error
	if c.CredentialDir == "" {
		errs = append(errs, errors.New("credential_dir must be set"))
	}
	if c.ScratchDir == "" {
		errs = append(errs, errors.New("scratch_dir must be set"))
	}
	positive := map[string]int{
		"max_concurrent_jobs": c.MaxConcurrentJobs,
		"queue_size":          c.QueueSize,
		"sticker.size":        c.Sticker.Size,
		"video.clip_seconds":  c.Video.ClipSeconds,
		"video.fps":           c.Video.FPS,
		"video.frame_width":   c.Video.FrameWidth,
	}
	for key, val := range positive {
		if val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, val))
		}
	}
	if c.Downloads.ImageTimeout <= 0 || c.Downloads.VideoTimeout <= 0 {
		errs = append(errs, errors.New("download timeouts must be positive"))
	}
	if c.Sticker.Quality < 1 || c.Sticker.Quality > 100 {
		errs = append(errs, fmt.Errorf("sticker.quality must be between 1 and 100, got %d", c.Sticker.Quality))
	}
	if c.MaxStartupFailures < 0 {
		errs = append(errs, errors.New("max_startup_failures must not be negative"))
	}
	return errors.Join(errs...)
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "credential_dir")
	helper.Copy(up.Str, "scratch_dir")
	helper.Copy(up.Str|up.Null, "target_group")
	helper.Copy(up.Str|up.Null, "self_message_prefix")
	helper.Copy(up.Str, "device_name")
	helper.Copy(up.Bool, "fetch_latest_version")
	helper.Copy(up.Int, "max_concurrent_jobs")
	helper.Copy(up.Int, "queue_size")
	helper.Copy(up.Str, "group_name_ttl")
	helper.Copy(up.Int, "max_startup_failures")
	helper.Copy(up.Str, "downloads", "image_timeout")
	helper.Copy(up.Str, "downloads", "video_timeout")
	helper.Copy(up.Int, "sticker", "size")
	helper.Copy(up.Int, "sticker", "quality")
	helper.Copy(up.Bool, "sticker", "lossless")
	helper.Copy(up.Str, "video", "ffmpeg_path")
	helper.Copy(up.Int, "video", "clip_seconds")
	helper.Copy(up.Int, "video", "fps")
	helper.Copy(up.Int, "video", "frame_width")
	helper.Copy(up.Bool, "qr", "terminal")
	helper.Copy(up.Str|up.Null, "qr", "http_addr")
	helper.Copy(up.Map, "logging")
}

var upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Base:           ExampleConfig,
}

// LoadConfig reads the config at path, writing the example config there
// first if the file does not exist. Keys missing from the file are filled
// in from the example and the merged result is saved back.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteExampleConfig(path); err != nil {
			return nil, err
		}
	}
	data, _, err := up.Do(path, true, upgrader)
	if err != nil {
		return nil, fmt.Errorf("upgrade config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// WriteExampleConfig writes the example config to path.
func WriteExampleConfig(path string) error {
	if err := os.WriteFile(path, []byte(ExampleConfig), 0o600); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	return nil
}
