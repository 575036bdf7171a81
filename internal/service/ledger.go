package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dedicated/internal/domain"
	"dedicated/internal/repository"
)

// CommissionSettingKey is the settings key holding the system commission percentage.
const CommissionSettingKey = "commission_percentage"

// minCorrection is the smallest delta worth a correction entry.
const minCorrection = 0.005

// Posting describes a single wallet balance change.
type Posting struct {
	UserID               string
	Direction            domain.Direction
	Amount               float64
	TransactionType      domain.TransactionType
	Description          string
	ReferenceType        domain.ReferenceType
	ReferenceID          string
	FareAmount           float64
	CommissionPercentage float64
	RelatedEntryID       string
}

// CorrectionReport summarizes a commission recalculation run.
type CorrectionReport struct {
	Percentage  float64
	Scanned     int
	Corrections []*domain.LedgerEntry
	NetDelta    float64
	Failed      int
}

// BackfillReport summarizes an earnings backfill run.
type BackfillReport struct {
	Percentage float64
	Created    []*domain.LedgerEntry
	Skipped    int
	Failed     int
}

// Reconciliation compares a wallet's stored balance with its ledger.
type Reconciliation struct {
	WalletID   string
	Balance    float64
	LedgerSum  float64
	Consistent bool
}

// LedgerService maintains wallets through append-only ledger entries. Every
// entry is written in the same transaction as the balance it produces.
type LedgerService struct {
	tx                repository.Transactor
	wallets           repository.WalletRepository
	ledger            repository.LedgerRepository
	settings          repository.SettingsRepository
	fares             repository.FareRepository
	currency          string
	defaultCommission float64
	log               logrus.FieldLogger
	now               func() time.Time
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	tx repository.Transactor,
	store repository.Store,
	fares repository.FareRepository,
	currency string,
	defaultCommission float64,
	log logrus.FieldLogger,
) *LedgerService {
	return &LedgerService{
		tx:                tx,
		wallets:           store.Wallets,
		ledger:            store.Ledger,
		settings:          store.Settings,
		fares:             fares,
		currency:          currency,
		defaultCommission: defaultCommission,
		log:               log,
		now:               time.Now,
	}
}

// Post appends one entry and applies it to the user's wallet, creating the
// wallet on first use.
func (s *LedgerService) Post(ctx context.Context, p Posting) (*domain.LedgerEntry, error) {
	if err := validatePosting(&p); err != nil {
		return nil, err
	}

	var entry *domain.LedgerEntry
	err := s.tx.WithinTx(ctx, func(tx repository.Store) error {
		wallet, err := s.lockWallet(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		entry, err = s.appendEntry(ctx, tx, wallet, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func validatePosting(p *Posting) error {
	fields := fieldErrors{}
	if p.UserID == "" {
		fields.add("userId", "is required")
	}
	if p.Direction != domain.DirectionCredit && p.Direction != domain.DirectionDebit {
		fields.add("direction", "must be credit or debit")
	}
	if p.TransactionType == "" {
		fields.add("transactionType", "is required")
	}
	if err := fields.err(); err != nil {
		return err
	}

	p.Amount = Round2(p.Amount)
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// lockWallet returns the user's wallet locked for the rest of the transaction.
func (s *LedgerService) lockWallet(ctx context.Context, tx repository.Store, userID string) (*domain.Wallet, error) {
	now := s.now()
	err := tx.Wallets.CreateIfAbsent(ctx, &domain.Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return tx.Wallets.GetByUserIDForUpdate(ctx, userID)
}

func (s *LedgerService) appendEntry(ctx context.Context, tx repository.Store, wallet *domain.Wallet, p Posting) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:                   uuid.New().String(),
		WalletID:             wallet.ID,
		UserID:               wallet.UserID,
		Direction:            p.Direction,
		Amount:               p.Amount,
		Description:          p.Description,
		TransactionType:      p.TransactionType,
		ReferenceType:        p.ReferenceType,
		ReferenceID:          p.ReferenceID,
		FareAmount:           p.FareAmount,
		CommissionPercentage: p.CommissionPercentage,
		RelatedEntryID:       p.RelatedEntryID,
		CreatedAt:            s.now(),
	}
	entry.BalanceAfter = Round2(wallet.Balance + entry.Signed())

	if err := tx.Ledger.Append(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.Wallets.UpdateBalance(ctx, wallet.ID, entry.BalanceAfter); err != nil {
		return nil, err
	}
	wallet.Balance = entry.BalanceAfter
	return entry, nil
}

// CommissionPercentage returns the commission currently in effect.
func (s *LedgerService) CommissionPercentage(ctx context.Context) (float64, error) {
	raw, err := s.settings.Get(ctx, CommissionSettingKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.defaultCommission, nil
		}
		return 0, err
	}
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s setting %q: %w", CommissionSettingKey, raw, err)
	}
	return pct, nil
}

// earningsPosting derives the entry a paid fare produces. Card and wallet
// fares credit the driver share; cash fares debit the system share because
// the driver already holds the money.
func earningsPosting(fare domain.PaidFare, pct float64) Posting {
	txType := fare.EarningsType()
	p := Posting{
		UserID:               fare.DriverID,
		TransactionType:      txType,
		ReferenceType:        fare.ReferenceType,
		ReferenceID:          fare.ReferenceID,
		FareAmount:           fare.Amount,
		CommissionPercentage: pct,
	}

	p.Amount = Round2(fare.Amount * fareShare(txType, pct))
	if txType.IsCommissionDebit() {
		p.Direction = domain.DirectionDebit
		p.Description = fmt.Sprintf("Commission %.2f%% on cash %s %s", pct, fare.ReferenceType, fare.ReferenceID)
	} else {
		p.Direction = domain.DirectionCredit
		p.Description = fmt.Sprintf("Earnings for %s %s (commission %.2f%%)", fare.ReferenceType, fare.ReferenceID, pct)
	}
	return p
}

// fareShare is the fraction of a fare an entry of txType carries.
func fareShare(txType domain.TransactionType, pct float64) float64 {
	if txType.IsCommissionDebit() {
		return pct / 100
	}
	return (100 - pct) / 100
}

// CreditEarnings records the earnings entry of a paid fare at the current
// commission. It returns nil without error when the fare already has one or
// its share rounds to zero.
func (s *LedgerService) CreditEarnings(ctx context.Context, fare domain.PaidFare) (*domain.LedgerEntry, error) {
	pct, err := s.CommissionPercentage(ctx)
	if err != nil {
		return nil, err
	}
	return s.creditEarnings(ctx, fare, pct)
}

func (s *LedgerService) creditEarnings(ctx context.Context, fare domain.PaidFare, pct float64) (*domain.LedgerEntry, error) {
	posting := earningsPosting(fare, pct)
	if posting.Amount <= 0 {
		return nil, nil
	}

	var entry *domain.LedgerEntry
	err := s.tx.WithinTx(ctx, func(tx repository.Store) error {
		wallet, err := s.lockWallet(ctx, tx, fare.DriverID)
		if err != nil {
			return err
		}

		// The wallet lock serializes this check with any other posting for the driver.
		exists, err := tx.Ledger.HasEarnings(ctx, fare.ReferenceType, fare.ReferenceID, fare.DriverID, posting.TransactionType)
		if err != nil || exists {
			return err
		}

		entry, err = s.appendEntry(ctx, tx, wallet, posting)
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecalculateCommission stores a new commission percentage and corrects every
// fare-linked earnings entry to what it would have been under it. Each
// correction is its own transaction; re-running with the same percentage
// emits nothing.
func (s *LedgerService) RecalculateCommission(ctx context.Context, pct float64) (*CorrectionReport, error) {
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return nil, ErrInvalidCommission
	}

	if err := s.storeCommission(ctx, pct); err != nil {
		return nil, err
	}

	entries, err := s.ledger.ListFareLinkedEarnings(ctx)
	if err != nil {
		return nil, err
	}

	report := &CorrectionReport{Percentage: pct}
	for _, e := range entries {
		report.Scanned++

		correction, err := s.correctEntry(ctx, e, pct)
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithFields(logrus.Fields{
				"entry_id":     e.ID,
				"reference_id": e.ReferenceID,
			}).Error("commission correction failed")
			continue
		}
		if correction != nil {
			report.Corrections = append(report.Corrections, correction)
			report.NetDelta = Round2(report.NetDelta + correction.Signed())
		}
	}

	s.log.WithFields(logrus.Fields{
		"percentage":  pct,
		"scanned":     report.Scanned,
		"corrections": len(report.Corrections),
		"net_delta":   report.NetDelta,
		"failed":      report.Failed,
	}).Info("commission recalculated")

	return report, nil
}

// storeCommission writes the percentage with an explicit read-modify-write.
func (s *LedgerService) storeCommission(ctx context.Context, pct float64) error {
	value := strconv.FormatFloat(pct, 'f', -1, 64)

	return s.tx.WithinTx(ctx, func(tx repository.Store) error {
		_, err := tx.Settings.GetForUpdate(ctx, CommissionSettingKey)
		if errors.Is(err, repository.ErrNotFound) {
			return tx.Settings.Insert(ctx, CommissionSettingKey, value)
		}
		if err != nil {
			return err
		}
		return tx.Settings.Update(ctx, CommissionSettingKey, value)
	})
}

// correctEntry appends the correction that brings the net effect of an
// earnings entry and its prior corrections to the amount owed at pct.
func (s *LedgerService) correctEntry(ctx context.Context, e *domain.LedgerEntry, pct float64) (*domain.LedgerEntry, error) {
	var correction *domain.LedgerEntry

	err := s.tx.WithinTx(ctx, func(tx repository.Store) error {
		wallet, err := s.lockWallet(ctx, tx, e.UserID)
		if err != nil {
			return err
		}

		prior, err := tx.Ledger.SumCorrections(ctx, e.ID)
		if err != nil {
			return err
		}

		target := Round2(e.FareAmount * fareShare(e.TransactionType, pct))
		if e.TransactionType.IsCommissionDebit() {
			target = -target
		}

		delta := Round2(target - (e.Signed() + prior))
		if math.Abs(delta) < minCorrection {
			return nil
		}

		direction := domain.DirectionCredit
		if delta < 0 {
			direction = domain.DirectionDebit
		}

		correction, err = s.appendEntry(ctx, tx, wallet, Posting{
			UserID:               e.UserID,
			Direction:            direction,
			Amount:               math.Abs(delta),
			TransactionType:      domain.TransactionCommissionCorrection,
			Description:          fmt.Sprintf("Commission corrected from %.2f%% to %.2f%% for %s %s", e.CommissionPercentage, pct, e.ReferenceType, e.ReferenceID),
			ReferenceType:        e.ReferenceType,
			ReferenceID:          e.ReferenceID,
			CommissionPercentage: pct,
			RelatedEntryID:       e.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return correction, nil
}

// Backfill synthesizes earnings entries for paid fares that never received
// one, at the commission in effect now.
func (s *LedgerService) Backfill(ctx context.Context) (*BackfillReport, error) {
	pct, err := s.CommissionPercentage(ctx)
	if err != nil {
		return nil, err
	}

	fares, err := s.fares.ListUnrecordedPaidFares(ctx)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{Percentage: pct}
	for _, fare := range fares {
		entry, err := s.creditEarnings(ctx, fare, pct)
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithFields(logrus.Fields{
				"reference_type": fare.ReferenceType,
				"reference_id":   fare.ReferenceID,
				"driver_id":      fare.DriverID,
			}).Error("earnings backfill failed")
			continue
		}
		if entry == nil {
			report.Skipped++
			continue
		}
		report.Created = append(report.Created, entry)
	}

	s.log.WithFields(logrus.Fields{
		"percentage": pct,
		"created":    len(report.Created),
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("earnings backfill finished")

	return report, nil
}

// Balance returns a user's wallet with its current balance.
func (s *LedgerService) Balance(ctx context.Context, userID string) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return wallet, nil
}

// Entries returns a page of a user's ledger, newest first.
func (s *LedgerService) Entries(ctx context.Context, userID string, page, limit int) ([]*domain.LedgerEntry, error) {
	page, limit = NormalizePage(page, limit)
	return s.ledger.ListByUser(ctx, userID, page, limit)
}

// Verify recomputes a wallet's balance from its ledger.
func (s *LedgerService) Verify(ctx context.Context, userID string) (*Reconciliation, error) {
	wallet, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := s.ledger.SumSigned(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}

	return &Reconciliation{
		WalletID:   wallet.ID,
		Balance:    wallet.Balance,
		LedgerSum:  Round2(sum),
		Consistent: math.Abs(wallet.Balance-sum) < minCorrection,
	}, nil
}
