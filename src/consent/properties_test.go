package consent

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stake-plus/commons/src/shared/gov"
)

var pairParties = []string{"ana", "ben", "cy"}

// runRelationshipScript applies random consent operations across three
// members and checks the one-open-per-pair and two-of-two cooldown rules
// after every step.
func runRelationshipScript(t *testing.T, script []int) string {
	f := newFixture(t, pairParties...)
	var contracts []string

	for _, raw := range script {
		a := pairParties[raw%3]
		b := pairParties[(raw/3)%3]
		kind := (raw / 9) % 7

		rels, err := f.st.ListRelationshipsByMember(f.ctx, a)
		if err != nil {
			return err.Error()
		}
		var relID string
		var before gov.Relationship
		if len(rels) > 0 {
			before = rels[(raw/63)%len(rels)]
			relID = before.ID
		}

		var after *gov.Relationship
		switch kind {
		case 0:
			if c, err := f.engine.ProposeRelationship(f.ctx, a, b, gov.RelationshipSolidarity, ""); err == nil {
				contracts = append(contracts, c.ID)
			}
		case 1:
			if len(contracts) > 0 {
				_, _ = f.engine.ConsentToRelationship(f.ctx, a, contracts[(raw/63)%len(contracts)])
			}
		case 2:
			after, _ = f.engine.InitiateCooldown(f.ctx, a, relID)
		case 3:
			after, err = f.engine.ConfirmCooldownEnd(f.ctx, a, relID)
			if err == nil && after.Status == gov.RelationshipActive {
				confs, _ := f.st.ListCooldownConfirmations(f.ctx, relID, before.CooldownEpisode)
				if len(confs) != 2 {
					return fmt.Sprintf("%s reactivated with %d confirmations", relID, len(confs))
				}
			}
		case 4:
			after, _ = f.engine.TerminateRelationship(f.ctx, a, relID, "")
		case 5:
			after, _ = f.engine.UpdateBoundaries(f.ctx, a, relID, "new")
		case 6:
			f.clock.Advance(time.Duration(raw%100) * time.Hour)
		}

		if after != nil && before.Status == gov.RelationshipTerminated {
			return fmt.Sprintf("terminated %s was mutated to %s", relID, after.Status)
		}

		for i, x := range pairParties {
			for _, y := range pairParties[i+1:] {
				open := 0
				all, _ := f.st.ListRelationshipsByMember(f.ctx, x)
				for _, r := range all {
					if r.HasParty(y) && r.Status.Open() {
						open++
					}
				}
				if open > 1 {
					return fmt.Sprintf("%d open relationships between %s and %s", open, x, y)
				}
			}
		}
	}
	return ""
}

func TestRelationshipProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("one open relationship per pair, cooldown exits need both parties", prop.ForAll(
		func(script []int) string {
			return runRelationshipScript(t, script)
		},
		gen.SliceOf(gen.IntRange(0, 629)),
	))

	properties.TestingRun(t)
}
