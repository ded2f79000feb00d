// commons-smoketest drives one proposal and one relationship through their
// whole lifecycle against a store and checks the ledger afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/commons/src/consent"
	"github.com/stake-plus/commons/src/data"
	"github.com/stake-plus/commons/src/governance"
	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
	"github.com/stake-plus/commons/src/store/gormstore"
	"github.com/stake-plus/commons/src/store/memstore"
	"github.com/stake-plus/commons/src/treasury"
)

var (
	dsnFlag     = flag.String("dsn", "", "MySQL DSN; empty uses the in-memory store")
	membersFlag = flag.Int("members", 5, "Number of members to enrol")
	fundFlag    = flag.Uint64("fund", 1000, "Treasury deposit before the funding proposal")
)

// clock is advanced by the scenario instead of waiting out real periods.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func main() {
	log.SetFlags(0)
	flag.Parse()
	if *membersFlag < 3 {
		log.Fatal("need at least 3 members")
	}

	st, err := openStore(*dsnFlag)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	if err := run(context.Background(), st); err != nil {
		log.Fatalf("FAIL: %v", err)
	}
	log.Print("OK")
}

func openStore(dsn string) (store.Store, error) {
	if dsn == "" {
		return memstore.New(), nil
	}
	db, err := data.ConnectMySQL(dsn)
	if err != nil {
		return nil, err
	}
	if err := data.Migrate(db); err != nil {
		return nil, err
	}
	return gormstore.New(db), nil
}

func run(ctx context.Context, st store.Store) error {
	clk := &clock{t: time.Now().UTC()}
	commit := ledger.NewCommitter(st, nil)
	members := membership.NewRegistry(st, commit, membership.WithClock(clk.now))
	govEngine, err := governance.New(st, members, commit, governance.DefaultParams(),
		governance.WithClock(clk.now), governance.WithTransferer(treasury.Pool{}))
	if err != nil {
		return err
	}
	consentEngine, err := consent.New(st, members, commit, consent.DefaultCooldown, consent.WithClock(clk.now))
	if err != nil {
		return err
	}
	funds := treasury.NewService(st, commit, clk.now)

	// Run-unique names keep repeated runs against one database apart.
	run := clk.t.UnixNano()
	names := make([]string, *membersFlag)
	for i := range names {
		names[i] = fmt.Sprintf("smoke-%d-%d", run, i)
	}
	if err := members.EnsureAdmin(ctx, names[0]); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	for _, m := range names[1:] {
		if _, err := members.Join(ctx, m, ""); err != nil {
			return fmt.Errorf("join %s: %w", m, err)
		}
	}
	log.Printf("enrolled %d members", len(names))

	if _, err := funds.Deposit(ctx, names[0], *fundFlag, "smoketest"); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	p, err := govEngine.CreateProposal(ctx, names[1], governance.ProposalInput{
		Type: gov.ProposalRuleChange, Title: "smoke rule", Description: "smoketest",
		ListeningDays: 1, VotingDays: 1,
	})
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	for _, m := range names {
		if _, err := govEngine.RespondToProposal(ctx, m, p.ID, "ok", false); err != nil {
			return fmt.Errorf("respond %s: %w", m, err)
		}
	}
	clk.advance(25 * time.Hour)
	if _, err := govEngine.OpenVoting(ctx, names[0], p.ID); err != nil {
		return fmt.Errorf("open voting: %w", err)
	}
	for _, m := range names {
		if _, err := govEngine.Vote(ctx, m, p.ID, true); err != nil {
			return fmt.Errorf("vote %s: %w", m, err)
		}
	}
	clk.advance(25 * time.Hour)
	done, err := govEngine.ExecuteProposal(ctx, names[2], p.ID)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if done.Status != gov.StatusExecuted {
		return fmt.Errorf("proposal %d ended %s", p.ID, done.Status)
	}
	log.Printf("proposal %d executed with %d/%d", p.ID, done.ForVotes, done.TotalVotes)

	c, err := consentEngine.ProposeRelationship(ctx, names[1], names[2], gov.RelationshipCollaborative, "smoke")
	if err != nil {
		return fmt.Errorf("propose relationship: %w", err)
	}
	rel, err := consentEngine.ConsentToRelationship(ctx, names[2], c.ID)
	if err != nil {
		return fmt.Errorf("consent: %w", err)
	}
	if _, err := consentEngine.InitiateCooldown(ctx, names[1], rel.ID); err != nil {
		return fmt.Errorf("cooldown: %w", err)
	}
	for _, m := range names[1:3] {
		if rel, err = consentEngine.ConfirmCooldownEnd(ctx, m, rel.ID); err != nil {
			return fmt.Errorf("confirm %s: %w", m, err)
		}
	}
	if rel.Status != gov.RelationshipActive {
		return fmt.Errorf("relationship %s is %s after both confirmations", rel.ID, rel.Status)
	}
	if _, err := consentEngine.TerminateRelationship(ctx, names[2], rel.ID, "smoke done"); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	log.Printf("relationship %s established, cooled down, reactivated and terminated", rel.ID)

	rep, err := ledger.VerifyStore(ctx, st, 500)
	if err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	if !rep.OK {
		return fmt.Errorf("ledger broken at %d: %s", rep.BrokenAt, rep.Reason)
	}
	log.Printf("ledger intact: %d entries, head %s", rep.Checked, rep.HeadHash)
	return nil
}
