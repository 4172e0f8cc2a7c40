package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/importer"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/repomanager"
)

type AccountService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	sealer Sealer
	log    logging.Logger
	now    func() time.Time
}

func NewAccountService(db *sql.DB, repos repomanager.RepositoryManager, sealer Sealer, log logging.Logger) *AccountService {
	return &AccountService{db: db, repos: repos, sealer: sealer, log: log, now: time.Now}
}

// Import seals and upserts recs in one transaction. Re-importing an
// account replaces its secrets and pool owner but keeps its progress.
func (s *AccountService) Import(ctx context.Context, recs []importer.AccountRecord, poolOwner string) (int, error) {
	now := s.now().UTC()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		for _, rec := range recs {
			sealed, err := s.sealer.Seal(rec.AccountSecrets)
			if err != nil {
				return fmt.Errorf("seal %s: %w", rec.Email, err)
			}
			acc := &models.SealedAccount{Email: rec.Email, Secrets: sealed, PoolOwner: poolOwner, CreatedAt: now}
			if err := repo.Upsert(ctx, acc); err != nil {
				return fmt.Errorf("save %s: %w", rec.Email, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import accounts: %w", err)
	}
	s.log.Info(ctx, "accounts imported", "count", len(recs), "pool_owner", poolOwner)
	return len(recs), nil
}

// Load returns the decrypted account id with its last progress.
func (s *AccountService) Load(ctx context.Context, id string) (*models.Account, error) {
	sealed, err := s.repos.Accounts(s.db).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}

	acc := summary(sealed)
	if err := s.sealer.Open(sealed.Secrets, &acc.AccountSecrets); err != nil {
		return nil, fmt.Errorf("decrypt account %s: %w", id, err)
	}
	return acc, nil
}

// List returns every account with its progress. Secrets are not decrypted.
func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	sealed, err := s.repos.Accounts(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Account, 0, len(sealed))
	for i := range sealed {
		out = append(out, *summary(&sealed[i]))
	}
	return out, nil
}

// IDs returns every account id in import order.
func (s *AccountService) IDs(ctx context.Context) ([]string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i := range list {
		ids[i] = list[i].Email
	}
	return ids, nil
}

func summary(sealed *models.SealedAccount) *models.Account {
	acc := &models.Account{
		Email:     sealed.Email,
		PoolOwner: sealed.PoolOwner,
		Status:    models.StatusNotLoggedIn,
		UpdatedAt: sealed.CreatedAt,
	}
	if p := sealed.Progress; p != nil {
		acc.Status = p.Status
		acc.Enhanced = p.Enhanced
		acc.VerificationLink = p.VerificationLink
		acc.AssignedInstrumentID = p.InstrumentID
		acc.UpdatedAt = p.UpdatedAt
		if p.Status == models.StatusError {
			acc.LastError = p.Message
		}
	}
	return acc
}
