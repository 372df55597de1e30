package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/taskme-network/taskme/internal/api"
	"github.com/taskme-network/taskme/internal/app/approval"
	"github.com/taskme-network/taskme/internal/app/dispatch"
	"github.com/taskme-network/taskme/internal/app/intake"
	"github.com/taskme-network/taskme/internal/app/ledger"
	"github.com/taskme-network/taskme/internal/app/streak"
	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

// Daemon is the assembled economy core.
type Daemon struct {
	cfg Config
	db  *sqlite.DB

	Ledger     *ledger.Service
	Approvals  *approval.Workflow
	Streaks    *streak.Engine
	Dispatcher *dispatch.Dispatcher
	Intake     *intake.Service

	server *api.Server
	httpd  *http.Server
}

// New opens storage under the taskme home and wires every service
// together: the approval workflow's decision and review hooks feed the
// dispatcher, and the dispatcher publishes to the live event hub.
func New(cfg Config) (*Daemon, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("create home %s: %w", home, err)
	}

	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	hub := api.NewEventHub()

	lg := ledger.New(db)
	se := streak.New(db, streak.Config{
		Milestones:      cfg.Streak.Milestones,
		GraceAllotment:  cfg.Streak.GraceAllotment,
		GraceRefillDays: cfg.Streak.GraceRefillDays,
	})
	d := dispatch.New(db, lg, se, dispatchConfig(cfg.Economy), hub)

	wf := approval.New(db, approval.Config{
		MaxEvidenceBytes: cfg.Approval.MaxEvidenceMB << 20,
	})
	wf.OnDecided = d.HandleDecided
	wf.OnReviewRecorded = d.HandleReview

	srv := api.NewServer(lg, wf, se, d)
	srv.SetEventHub(hub)
	srv.SetSignupBonus(cfg.Economy.SignupBonus)
	if cfg.API.MetricsEnabled {
		srv.EnableMetrics()
	}

	daemon := &Daemon{
		cfg:        cfg,
		db:         db,
		Ledger:     lg,
		Approvals:  wf,
		Streaks:    se,
		Dispatcher: d,
		server:     srv,
	}

	if cfg.Intake.Enabled {
		limits := intake.DefaultLimits()
		limits.MaxRewardAmount = cfg.Intake.MaxRewardAmount
		limits.ProposalTTL = cfg.Intake.ProposalTTLDuration()
		daemon.Intake = intake.New(d, limits)
		srv.SetIntake(daemon.Intake)
	}

	return daemon, nil
}

// dispatchConfig converts the TOML-friendly economy section into the
// dispatcher's reward policy.
func dispatchConfig(eco EconomyConfig) dispatch.Config {
	cfg := dispatch.Config{
		MilestoneRewards: make(map[int]int64, len(eco.MilestoneRewards)),
		PeerReviewReward: eco.PeerReviewReward,
		CreationCosts:    make(map[domain.EvidenceType]int64, len(eco.CreationCosts)),
		RefundOnReject:   eco.RefundOnReject,
		ContributionXP:   eco.ContributionXP,
		PeerReviewXP:     eco.PeerReviewXP,
		MilestoneXP:      make(map[int]int64, len(eco.MilestoneXP)),
	}
	for k, v := range eco.MilestoneRewards {
		threshold, err := strconv.Atoi(k)
		if err != nil {
			log.Printf("[daemon] ignoring milestone reward with bad threshold %q", k)
			continue
		}
		cfg.MilestoneRewards[threshold] = v
	}
	for k, v := range eco.MilestoneXP {
		threshold, err := strconv.Atoi(k)
		if err != nil {
			log.Printf("[daemon] ignoring milestone xp with bad threshold %q", k)
			continue
		}
		cfg.MilestoneXP[threshold] = v
	}
	for k, v := range eco.CreationCosts {
		cfg.CreationCosts[domain.EvidenceType(k)] = v
	}
	for _, b := range dispatch.DefaultConfig().Badges {
		b.Reward = eco.BadgeRewards[b.Name]
		cfg.Badges = append(cfg.Badges, b)
	}
	return cfg
}

// Run serves the HTTP API and the background sweep loop until ctx is
// canceled. On startup it redelivers any approved contribution whose
// reward chain was cut short — the idempotency keys make that safe.
func (d *Daemon) Run(ctx context.Context) error {
	if n, err := d.Dispatcher.Redeliver(500); err != nil {
		log.Printf("[daemon] startup redelivery: %v", err)
	} else if n > 0 {
		log.Printf("[daemon] redelivered %d approved contributions", n)
	}

	go d.sweepLoop(ctx)

	addr := fmt.Sprintf("%s:%d", d.cfg.API.Host, d.cfg.API.Port)
	d.httpd = &http.Server{
		Addr:    addr,
		Handler: d.server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", addr)
		if err := d.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.httpd.Shutdown(shutdownCtx); err != nil {
		log.Printf("[daemon] shutdown: %v", err)
	}
	return d.db.Close()
}

// sweepLoop closes overdue reviews on the configured interval.
func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := d.cfg.Approval.SweepIntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := d.Approvals.SweepExpired()
			if err != nil {
				log.Printf("[daemon] sweep: %v", err)
				continue
			}
			if closed > 0 {
				log.Printf("[daemon] sweep closed %d overdue contributions", closed)
			}
		}
	}
}

// Close releases storage without serving.
func (d *Daemon) Close() error { return d.db.Close() }
