package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// starter mirrors Config with yaml tags for the generated starter file.
// Secrets are left blank so the file is safe to commit as a template.
type starter struct {
	Server struct {
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Metabase struct {
		SiteURL      string `yaml:"site_url"`
		SessionToken string `yaml:"session_token"`
		APIToken     string `yaml:"api_token"`
		QuestionID   string `yaml:"question_id"`
		DateStart    string `yaml:"date_start"`
		DateEnd      string `yaml:"date_end"`
		BotID        string `yaml:"bot_id"`
	} `yaml:"metabase"`
	Meta struct {
		GraphURL      string `yaml:"graph_url"`
		PixelID       string `yaml:"pixel_id"`
		AccessToken   string `yaml:"access_token"`
		TestEventCode string `yaml:"test_event_code"`
		ActionSource  string `yaml:"action_source"`
	} `yaml:"meta"`
	Dispatch struct {
		TestNumbers string `yaml:"test_numbers"`
		LedgerTTL   string `yaml:"ledger_ttl"`
	} `yaml:"dispatch"`
	Debug struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"debug"`
}

// WriteStarter writes a starter config.yaml with defaults filled in and
// secrets left blank. Refuses to overwrite an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	var s starter
	s.Server.Port = 8086
	s.Server.ReadTimeout = "15s"
	s.Server.WriteTimeout = "30s"
	s.Server.IdleTimeout = "60s"
	s.Logging.Level = "info"
	s.Logging.Format = "json"
	s.Redis.URL = "redis://localhost:6379/0"
	s.Meta.GraphURL = "https://graph.facebook.com/v18.0"
	s.Meta.ActionSource = "website"
	s.Dispatch.LedgerTTL = "4320h"

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal starter config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0o600)
}
