package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7450 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7450)
	}
	if cfg.Economy.SignupBonus != 100 {
		t.Errorf("Economy.SignupBonus = %d, want 100", cfg.Economy.SignupBonus)
	}
	if cfg.Economy.MilestoneRewards["7"] != 50 {
		t.Errorf("MilestoneRewards[7] = %d, want 50", cfg.Economy.MilestoneRewards["7"])
	}
	if cfg.Economy.ContributionXP != 10 {
		t.Errorf("ContributionXP = %d, want 10", cfg.Economy.ContributionXP)
	}
	if cfg.Economy.MilestoneXP["7"] != 25 {
		t.Errorf("MilestoneXP[7] = %d, want 25", cfg.Economy.MilestoneXP["7"])
	}
	if len(cfg.Streak.Milestones) != 3 || cfg.Streak.Milestones[0] != 7 {
		t.Errorf("Streak.Milestones = %v, want [7 30 100]", cfg.Streak.Milestones)
	}
	if cfg.Approval.SweepIntervalDuration() != 10*time.Minute {
		t.Errorf("SweepIntervalDuration() = %v, want 10m", cfg.Approval.SweepIntervalDuration())
	}
	if !cfg.Intake.Enabled {
		t.Error("Intake.Enabled should be true by default")
	}
	if cfg.Intake.ProposalTTLDuration() != 24*time.Hour {
		t.Errorf("ProposalTTLDuration() = %v, want 24h", cfg.Intake.ProposalTTLDuration())
	}
}

func TestLoadOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TASKME_HOME", home)

	toml := `
[api]
port = 9000

[economy]
signup_bonus = 25
refund_on_reject = true

[approval]
sweep_interval = "1m"
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want default retained", cfg.API.Host)
	}
	if cfg.Economy.SignupBonus != 25 {
		t.Errorf("SignupBonus = %d, want 25", cfg.Economy.SignupBonus)
	}
	if !cfg.Economy.RefundOnReject {
		t.Error("RefundOnReject not loaded")
	}
	if cfg.Approval.SweepIntervalDuration() != time.Minute {
		t.Errorf("SweepIntervalDuration() = %v, want 1m", cfg.Approval.SweepIntervalDuration())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TASKME_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TASKME_HOME", home)

	toml := `
[economy]
signup_bonu = 25
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("Load() accepted a misspelled key, want error")
	}
}

func TestSweepIntervalFallback(t *testing.T) {
	bad := ApprovalConfig{SweepInterval: "soon"}
	if got := bad.SweepIntervalDuration(); got != 10*time.Minute {
		t.Errorf("bad interval parsed to %v, want 10m fallback", got)
	}
}
