// Package services holds the operator-facing operations around the core:
// unlocking the secret store, importing accounts and cards, and loading
// decrypted accounts for the batch runner.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/cryptox"
	"github.com/dmitrijs2005/gophenroll/internal/dbx"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/repomanager"
)

// Sealer encrypts and decrypts secrets. *cryptox.Sealer satisfies it.
type Sealer interface {
	Seal(v any) ([]byte, error)
	Open(blob []byte, v any) error
}

// Unlock derives the master key from password and returns a sealer for it.
//
// The first call on an empty store generates the installation salt and
// stores it with the key verifier. Later calls check password against that
// verifier and return cryptox.ErrWrongKey on mismatch.
func Unlock(ctx context.Context, db *sql.DB, repos repomanager.RepositoryManager, password []byte) (*cryptox.Sealer, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("master password: %w", common.ErrMissingConfig)
	}

	var key []byte
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := repos.Metadata(tx)

		salt, err := meta.Get(ctx, common.SaltMetadataKey)
		if err != nil {
			return err
		}
		verifier, err := meta.Get(ctx, common.VerifierMetadataKey)
		if err != nil {
			return err
		}

		if salt == nil {
			salt = common.GenerateRandByteArray(cryptox.SaltSize)
			key = cryptox.DeriveMasterKey(password, salt)
			if err := meta.Set(ctx, common.SaltMetadataKey, salt); err != nil {
				return err
			}
			return meta.Set(ctx, common.VerifierMetadataKey, cryptox.MakeVerifier(key))
		}

		if verifier == nil {
			return fmt.Errorf("salt without verifier: %w", common.ErrInvalidRecord)
		}
		key = cryptox.DeriveMasterKey(password, salt)
		return cryptox.CheckVerifier(key, verifier)
	})
	if err != nil {
		if errors.Is(err, cryptox.ErrWrongKey) {
			return nil, err
		}
		return nil, fmt.Errorf("unlock: %w", err)
	}
	defer common.WipeByteArray(key)

	return cryptox.NewSealer(key)
}
