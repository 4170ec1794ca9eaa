package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/db/dbtest"
)

func TestRepositoryCreditAndRedeem(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	userID := dbtest.CreateUser(t, pool, "alice@example.com")

	w, err := repo.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Points)

	w, _, err = repo.Credit(ctx, userID, 1200, TxEarnedReport, "Points earned for reporting waste")
	require.NoError(t, err)
	require.Equal(t, int64(1200), w.Points)
	require.Equal(t, 2, w.Level)

	offer, err := repo.CreateOffer(ctx, OfferInput{Name: "Bag", Cost: 300})
	require.NoError(t, err)

	w, tx, err := repo.Redeem(ctx, userID, offer.ID, 300)
	require.NoError(t, err)
	require.Equal(t, int64(900), w.Points)
	require.Equal(t, 1, w.Level)
	require.Equal(t, "Redeemed: Bag", tx.Description)

	_, _, err = repo.Redeem(ctx, userID, offer.ID, 250)
	require.ErrorIs(t, err, common.ErrRewardCostMismatch)

	_, _, err = repo.Redeem(ctx, userID, offer.ID+100, 0)
	require.ErrorIs(t, err, common.ErrRewardNotFound)
	require.ErrorIs(t, err, common.ErrRedemptionRejected)

	w, tx, err = repo.RedeemAll(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Points)
	require.Equal(t, int64(900), tx.Amount)

	txs, err := repo.ListTransactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, tx.ID, txs[0].ID)

	drifts, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestRepositoryUnknownUser(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewRepository(pool)

	_, err := repo.EnsureWallet(context.Background(), 424242)
	require.ErrorIs(t, err, common.ErrUserNotFound)

	_, _, err = repo.Credit(context.Background(), 424242, 10, TxEarnedReport, "")
	require.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestRepositoryInsufficientPointsRollsBack(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	userID := dbtest.CreateUser(t, pool, "bob@example.com")

	_, _, err := repo.Credit(ctx, userID, 10, TxEarnedReport, "")
	require.NoError(t, err)
	offer, err := repo.CreateOffer(ctx, OfferInput{Name: "Voucher", Cost: 15})
	require.NoError(t, err)

	_, _, err = repo.Redeem(ctx, userID, offer.ID, 0)
	require.ErrorIs(t, err, common.ErrInsufficientPoints)

	w, err := repo.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(10), w.Points)

	txs, err := repo.ListTransactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestRepositoryConcurrentRedeems(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	userID := dbtest.CreateUser(t, pool, "carol@example.com")

	_, _, err := repo.Credit(ctx, userID, 100, TxEarnedReport, "")
	require.NoError(t, err)
	offer, err := repo.CreateOffer(ctx, OfferInput{Name: "Ticket", Cost: 30})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Redeem(ctx, userID, offer.ID, 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, common.ErrInsufficientPoints):
				fail++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, ok)
	require.Equal(t, 5, fail)

	w, err := repo.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(10), w.Points)

	drifts, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestRepositoryOffers(t *testing.T) {
	pool := dbtest.Pool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	hidden := false
	_, err := repo.CreateOffer(ctx, OfferInput{Name: "B", Cost: 50})
	require.NoError(t, err)
	_, err = repo.CreateOffer(ctx, OfferInput{Name: "A", Cost: 20})
	require.NoError(t, err)
	_, err = repo.CreateOffer(ctx, OfferInput{Name: "C", Cost: 5, IsAvailable: &hidden})
	require.NoError(t, err)

	available, err := repo.ListOffers(ctx, true)
	require.NoError(t, err)
	require.Len(t, available, 2)
	require.Equal(t, "A", available[0].Name)

	all, err := repo.ListOffers(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)

	name := "Renamed"
	o, err := repo.UpdateOffer(ctx, all[0].ID, OfferPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", o.Name)
	require.Equal(t, int64(5), o.Cost)
}
