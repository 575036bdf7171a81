package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedicated/internal/domain"
)

func cardFare(id, driverID string, amount float64) domain.PaidFare {
	return domain.PaidFare{
		ReferenceType: domain.ReferenceBooking,
		ReferenceID:   id,
		DriverID:      driverID,
		Amount:        amount,
		PaymentMethod: domain.PaymentMethodCard,
		PaidAt:        testNow,
	}
}

func cashFare(id, driverID string, amount float64) domain.PaidFare {
	return domain.PaidFare{
		ReferenceType: domain.ReferenceRide,
		ReferenceID:   id,
		DriverID:      driverID,
		Amount:        amount,
		PaymentMethod: domain.PaymentMethodCash,
		PaidAt:        testNow,
	}
}

// assertLedgerConsistent checks every wallet against its entries: the stored
// balance equals the signed sum and each BalanceAfter follows its predecessor.
func assertLedgerConsistent(t *testing.T, h *harness) {
	t.Helper()

	running := map[string]float64{}
	for _, e := range h.ledgerRepo.Entries() {
		running[e.WalletID] = Round2(running[e.WalletID] + e.Signed())
		require.InDelta(t, running[e.WalletID], e.BalanceAfter, 1e-6, "entry %s", e.ID)
	}

	for userID := range h.users.users {
		rec, err := h.ledger.Verify(context.Background(), userID)
		if errors.Is(err, ErrWalletNotFound) {
			continue
		}
		require.NoError(t, err)
		require.True(t, rec.Consistent, "wallet of %s: balance %.2f ledger %.2f", userID, rec.Balance, rec.LedgerSum)
		require.InDelta(t, running[rec.WalletID], rec.Balance, 1e-6)
	}
}

// ──────────────────────────────────────────────
// POSTING
// ──────────────────────────────────────────────

func TestPost_AppliesSignedAmounts(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	e1, err := h.ledger.Post(ctx, Posting{UserID: "driver-1", Direction: domain.DirectionCredit, Amount: 100, TransactionType: domain.TransactionTopUp})
	require.NoError(t, err)
	assert.Equal(t, 100.0, e1.BalanceAfter)

	e2, err := h.ledger.Post(ctx, Posting{UserID: "driver-1", Direction: domain.DirectionDebit, Amount: 30.255, TransactionType: domain.TransactionWithdrawal})
	require.NoError(t, err)
	assert.Equal(t, 30.26, e2.Amount)
	assert.Equal(t, 69.74, e2.BalanceAfter)

	wallet, err := h.ledger.Balance(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 69.74, wallet.Balance)
	assert.Equal(t, "usd", wallet.Currency)

	entries, err := h.ledger.Entries(ctx, "driver-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e2.ID, entries[0].ID, "newest first")

	assertLedgerConsistent(t, h)
}

func TestPost_RejectsBadPostings(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	_, err := h.ledger.Post(ctx, Posting{UserID: "driver-1", Direction: domain.DirectionCredit, Amount: 0.004, TransactionType: domain.TransactionTopUp})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.ledger.Post(ctx, Posting{Direction: "sideways", Amount: 5})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "userId")
	assert.Contains(t, verr.Fields, "direction")
	assert.Contains(t, verr.Fields, "transactionType")

	_, err = h.ledger.Balance(ctx, "driver-1")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestPost_AppendFailureLeavesBalance(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	_, err := h.ledger.Post(ctx, Posting{UserID: "driver-1", Direction: domain.DirectionCredit, Amount: 10, TransactionType: domain.TransactionTopUp})
	require.NoError(t, err)

	h.ledgerRepo.AppendError = errInjected
	_, err = h.ledger.Post(ctx, Posting{UserID: "driver-1", Direction: domain.DirectionCredit, Amount: 10, TransactionType: domain.TransactionTopUp})
	assert.ErrorIs(t, err, errInjected)

	wallet, err := h.ledger.Balance(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, wallet.Balance)
}

func TestPost_ConcurrentPostingsAllApply(t *testing.T) {
	t.Parallel()
	h := newHarness()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ledger.Post(context.Background(), Posting{
				UserID: "driver-1", Direction: domain.DirectionCredit, Amount: 1.10, TransactionType: domain.TransactionTopUp,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	wallet, err := h.ledger.Balance(context.Background(), "driver-1")
	require.NoError(t, err)
	assert.InDelta(t, 55.0, wallet.Balance, 1e-6)
	assertLedgerConsistent(t, h)
}

// Random interleavings of every kind of ledger write keep the balance equal
// to the signed sum of entries after each step.
func TestLedger_BalanceEqualsSignedSumProperty(t *testing.T) {
	t.Parallel()

	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			r := rand.New(rand.NewSource(seed))
			drivers := []string{"driver-1", "driver-2"}

			for step := 0; step < 120; step++ {
				driver := drivers[r.Intn(len(drivers))]
				amount := float64(r.Intn(50000)+1) / 100

				switch r.Intn(5) {
				case 0:
					_, err := h.ledger.Post(ctx, Posting{UserID: driver, Direction: domain.DirectionCredit, Amount: amount, TransactionType: domain.TransactionTopUp})
					require.NoError(t, err)
				case 1:
					_, err := h.ledger.Post(ctx, Posting{UserID: driver, Direction: domain.DirectionDebit, Amount: amount, TransactionType: domain.TransactionWithdrawal})
					require.NoError(t, err)
				case 2:
					_, err := h.ledger.CreditEarnings(ctx, cardFare(fmt.Sprintf("bk-%d", step), driver, amount))
					require.NoError(t, err)
				case 3:
					_, err := h.ledger.CreditEarnings(ctx, cashFare(fmt.Sprintf("rd-%d", step), driver, amount))
					require.NoError(t, err)
				case 4:
					pct := float64(r.Intn(4001)) / 100 // 0.00 - 40.00
					_, err := h.ledger.RecalculateCommission(ctx, pct)
					require.NoError(t, err)
				}

				assertLedgerConsistent(t, h)
			}
		})
	}
}

// ──────────────────────────────────────────────
// EARNINGS
// ──────────────────────────────────────────────

func TestCreditEarnings_CardAndCashShapes(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	card, err := h.ledger.CreditEarnings(ctx, cardFare("bk-1", "driver-1", 100))
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionCredit, card.Direction)
	assert.Equal(t, domain.TransactionBookingEarnings, card.TransactionType)
	assert.Equal(t, 85.0, card.Amount)
	assert.Equal(t, 100.0, card.FareAmount)
	assert.Equal(t, 15.0, card.CommissionPercentage)

	cash, err := h.ledger.CreditEarnings(ctx, cashFare("rd-1", "driver-1", 100))
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDebit, cash.Direction)
	assert.Equal(t, domain.TransactionCashCommission, cash.TransactionType)
	assert.Equal(t, 15.0, cash.Amount)

	wallet, err := h.ledger.Balance(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 70.0, wallet.Balance)
}

func TestCreditEarnings_NoDuplicates(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	first, err := h.ledger.CreditEarnings(ctx, cardFare("bk-1", "driver-1", 100))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := h.ledger.CreditEarnings(ctx, cardFare("bk-1", "driver-1", 100))
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, h.ledgerRepo.Entries(), 1)
}

func TestCommissionPercentage_MalformedSetting(t *testing.T) {
	t.Parallel()
	h := newHarness()
	require.NoError(t, h.settings.Insert(context.Background(), CommissionSettingKey, "fifteen"))

	_, err := h.ledger.CommissionPercentage(context.Background())
	assert.Error(t, err)
}

// ──────────────────────────────────────────────
// COMMISSION CORRECTION
// ──────────────────────────────────────────────

func TestRecalculateCommission_FifteenToTwenty(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	earning, err := h.ledger.CreditEarnings(ctx, cardFare("bk-1", "driver-1", 100))
	require.NoError(t, err)
	require.Equal(t, 85.0, earning.Amount)

	report, err := h.ledger.RecalculateCommission(ctx, 20)
	require.NoError(t, err)
	require.Len(t, report.Corrections, 1)

	c := report.Corrections[0]
	assert.Equal(t, domain.DirectionDebit, c.Direction)
	assert.Equal(t, 5.0, c.Amount)
	assert.Equal(t, domain.TransactionCommissionCorrection, c.TransactionType)
	assert.Equal(t, earning.ID, c.RelatedEntryID)
	assert.Equal(t, -5.0, report.NetDelta)

	wallet, err := h.ledger.Balance(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, wallet.Balance)

	pct, err := h.ledger.CommissionPercentage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, pct)

	again, err := h.ledger.RecalculateCommission(ctx, 20)
	require.NoError(t, err)
	assert.Empty(t, again.Corrections)
	assert.Equal(t, 1, again.Scanned)

	back, err := h.ledger.RecalculateCommission(ctx, 15)
	require.NoError(t, err)
	require.Len(t, back.Corrections, 1)
	assert.Equal(t, domain.DirectionCredit, back.Corrections[0].Direction)
	assert.Equal(t, 5.0, back.Corrections[0].Amount)

	wallet, err = h.ledger.Balance(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 85.0, wallet.Balance)
	assertLedgerConsistent(t, h)
}

func TestRecalculateCommission_CashCorrectedSeparately(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	_, err := h.ledger.CreditEarnings(ctx, cashFare("rd-1", "driver-1", 100))
	require.NoError(t, err)
	_, err = h.ledger.CreditEarnings(ctx, cardFare("bk-1", "driver-2", 100))
	require.NoError(t, err)

	report, err := h.ledger.RecalculateCommission(ctx, 20)
	require.NoError(t, err)
	require.Len(t, report.Corrections, 2)

	byUser := map[string]*domain.LedgerEntry{}
	for _, c := range report.Corrections {
		byUser[c.UserID] = c
	}

	// Cash: the driver owes 20 instead of 15.
	assert.Equal(t, domain.DirectionDebit, byUser["driver-1"].Direction)
	assert.Equal(t, 5.0, byUser["driver-1"].Amount)

	// Card: the driver keeps 80 instead of 85.
	assert.Equal(t, domain.DirectionDebit, byUser["driver-2"].Direction)
	assert.Equal(t, 5.0, byUser["driver-2"].Amount)

	w1, err := h.ledger.Balance(ctx, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, -20.0, w1.Balance)

	w2, err := h.ledger.Balance(ctx, "driver-2")
	require.NoError(t, err)
	assert.Equal(t, 80.0, w2.Balance)

	report, err = h.ledger.RecalculateCommission(ctx, 10)
	require.NoError(t, err)
	for _, c := range report.Corrections {
		assert.Equal(t, 10.0, c.Amount)
	}
	assertLedgerConsistent(t, h)
}

func TestRecalculateCommission_RejectsOutOfRange(t *testing.T) {
	t.Parallel()
	h := newHarness()

	for _, pct := range []float64{-1, 100.01, math.NaN()} {
		_, err := h.ledger.RecalculateCommission(context.Background(), pct)
		assert.ErrorIs(t, err, ErrInvalidCommission)
	}
	_, err := h.settings.Get(context.Background(), CommissionSettingKey)
	assert.Error(t, err, "nothing stored")
}

func TestRecalculateCommission_FailedEntryDoesNotStopRun(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	_, err := h.ledger.CreditEarnings(ctx, cardFare("bk-1", "driver-1", 100))
	require.NoError(t, err)
	_, err = h.ledger.CreditEarnings(ctx, cardFare("bk-2", "driver-2", 50))
	require.NoError(t, err)

	h.ledgerRepo.AppendError = errInjected
	report, err := h.ledger.RecalculateCommission(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Failed)
	assert.True(t, logged(h.logHook, "commission correction failed"))

	h.ledgerRepo.AppendError = nil
	report, err = h.ledger.RecalculateCommission(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, report.Corrections, 2)
	assertLedgerConsistent(t, h)
}

// ──────────────────────────────────────────────
// BACKFILL
// ──────────────────────────────────────────────

func TestBackfill_CreatesMissingEntriesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.settings.Insert(ctx, CommissionSettingKey, "20"))

	recorded := cardFare("bk-1", "driver-1", 100)
	_, err := h.ledger.CreditEarnings(ctx, recorded)
	require.NoError(t, err)

	walletFare := domain.PaidFare{
		ReferenceType: domain.ReferenceRide, ReferenceID: "rd-1", DriverID: "driver-2",
		Amount: 50, PaymentMethod: domain.PaymentMethodWallet, PaidAt: testNow,
	}
	h.fares.Fares = []domain.PaidFare{recorded, walletFare, cashFare("rd-2", "driver-1", 40)}

	report, err := h.ledger.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, report.Percentage)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Created, 2)

	assert.Equal(t, domain.TransactionRideEarnings, report.Created[0].TransactionType)
	assert.Equal(t, 40.0, report.Created[0].Amount)
	assert.Equal(t, domain.TransactionCashCommission, report.Created[1].TransactionType)
	assert.Equal(t, 8.0, report.Created[1].Amount)

	again, err := h.ledger.Backfill(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 3, again.Skipped)
	assert.Len(t, h.ledgerRepo.Entries(), 3)
	assertLedgerConsistent(t, h)
}
