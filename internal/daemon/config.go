// Package daemon wires the economy core together: config, storage, the
// application services, and the HTTP server.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/taskme-network/taskme/internal/domain"
)

// Config is the daemon configuration, loaded from config.toml under the
// taskme home directory.
type Config struct {
	API      APIConfig      `toml:"api"`
	Economy  EconomyConfig  `toml:"economy"`
	Streak   StreakConfig   `toml:"streak"`
	Approval ApprovalConfig `toml:"approval"`
	Intake   IntakeConfig   `toml:"intake"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// EconomyConfig is the reward policy.
type EconomyConfig struct {
	SignupBonus      int64            `toml:"signup_bonus"`
	PeerReviewReward int64            `toml:"peer_review_reward"`
	MilestoneRewards map[string]int64 `toml:"milestone_rewards"` // threshold → payout
	BadgeRewards     map[string]int64 `toml:"badge_rewards"`     // badge name → payout
	CreationCosts    map[string]int64 `toml:"creation_costs"`    // evidence type → cost
	RefundOnReject   bool             `toml:"refund_on_reject"`
	ContributionXP   int64            `toml:"contribution_xp"`
	PeerReviewXP     int64            `toml:"peer_review_xp"`
	MilestoneXP      map[string]int64 `toml:"milestone_xp"` // threshold → XP
}

// StreakConfig is the continuity policy.
type StreakConfig struct {
	Milestones      []int `toml:"milestones"`
	GraceAllotment  int   `toml:"grace_allotment"`
	GraceRefillDays int   `toml:"grace_refill_days"`
}

// ApprovalConfig is the review policy.
type ApprovalConfig struct {
	MaxEvidenceMB int64  `toml:"max_evidence_mb"`
	SweepInterval string `toml:"sweep_interval"` // Go duration, e.g. "10m"
}

// IntakeConfig bounds untrusted commitment proposals.
type IntakeConfig struct {
	Enabled         bool   `toml:"enabled"`
	MaxRewardAmount int64  `toml:"max_reward_amount"`
	ProposalTTL     string `toml:"proposal_ttl"` // Go duration, e.g. "24h"
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           7450,
			MetricsEnabled: true,
		},
		Economy: EconomyConfig{
			SignupBonus:      100,
			PeerReviewReward: 5,
			MilestoneRewards: map[string]int64{"7": 50, "30": 250, "100": 1000},
			BadgeRewards:     map[string]int64{},
			CreationCosts: map[string]int64{
				string(domain.EvidenceNone):        5,
				string(domain.EvidenceAttestation): 10,
				string(domain.EvidencePhoto):       15,
				string(domain.EvidenceDocument):    15,
				string(domain.EvidencePeer):        25,
			},
			ContributionXP: 10,
			PeerReviewXP:   3,
			MilestoneXP:    map[string]int64{"7": 25, "30": 100, "100": 500},
		},
		Streak: StreakConfig{
			Milestones:      []int{7, 30, 100},
			GraceAllotment:  1,
			GraceRefillDays: 30,
		},
		Approval: ApprovalConfig{
			MaxEvidenceMB: 25,
			SweepInterval: "10m",
		},
		Intake: IntakeConfig{
			Enabled:         true,
			MaxRewardAmount: 100,
			ProposalTTL:     "24h",
		},
	}
}

// Home returns the taskme home directory. TASKME_HOME overrides the
// default ~/.taskme.
func Home() (string, error) {
	if home := os.Getenv("TASKME_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".taskme"), nil
}

// Load reads config.toml from the taskme home, falling back to defaults
// when the file does not exist. Unknown keys are an error — a typo in a
// reward amount should not silently apply the default.
func Load() (Config, error) {
	cfg := DefaultConfig()

	home, err := Home()
	if err != nil {
		return cfg, err
	}
	path := filepath.Join(home, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// SweepIntervalDuration parses the configured sweep interval.
func (c ApprovalConfig) SweepIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// ProposalTTLDuration parses the configured proposal TTL.
func (c IntakeConfig) ProposalTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.ProposalTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}
