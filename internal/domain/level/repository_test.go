package level_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/pkg/database"
	"github.com/liwaywai/lending-api/internal/pkg/testdb"
)

func TestPostgresConcurrentOutcomesPromoteOnce(t *testing.T) {
	db := testdb.Open(t)
	userID := testdb.CreateUser(t, db, "borrower")
	ctx := context.Background()

	repo := level.NewRepository(db)
	svc := level.NewService(repo, policy.Fixed{Table: policy.MustDefaultTable()})

	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		_, _, err := svc.Initialize(ctx, repo.Tx(tx), userID)
		return err
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// level 0 needs one completion, so both racers sit at required-1
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
				p, err := svc.ApplyPaymentOutcome(ctx, repo.Tx(tx), userID, level.OutcomeOnTime)
				if err != nil {
					return err
				}
				if p.LevelChanged {
					mu.Lock()
					changes++
					mu.Unlock()
				}
				return nil
			})
			if err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	if changes != 1 {
		t.Fatalf("expected exactly one level-up, got %d", changes)
	}

	rec, err := repo.GetRecord(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Level != 1 || rec.Streak != 1 || rec.TotalLoans != 2 || rec.UnlockedCap.String() != "750" {
		t.Fatalf("unexpected record %+v", rec)
	}

	card, err := repo.GetCardView(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if card.LevelSnapshot != 1 || card.Streak != 1 || card.Name != "Test Borrower" {
		t.Fatalf("unexpected card %+v", card)
	}
}
