package models

import "time"

// AccountSecrets is the material sealed at rest. The core never inspects it
// beyond handing it to the session driver.
type AccountSecrets struct {
	Password      string `json:"password"`
	BackupContact string `json:"backup_contact,omitempty"`
	OTPSeed       string `json:"otp_seed,omitempty"`
}

// Account is a decrypted account with its last known progress.
type Account struct {
	Email string
	AccountSecrets

	// PoolOwner selects a private instrument pool when non-empty.
	PoolOwner string

	Status               Status
	VerificationLink     string
	AssignedInstrumentID string
	LastError            string
	Enhanced             bool
	UpdatedAt            time.Time
}

// SealedAccount is the stored shape of an account.
type SealedAccount struct {
	Email     string
	Secrets   []byte
	PoolOwner string
	CreatedAt time.Time

	// Progress is nil for an account that has never been processed.
	Progress *Progress
}

// Progress is the last recorded outcome for an account.
type Progress struct {
	AccountID        string
	Status           Status
	Message          string
	Enhanced         bool
	VerificationLink string
	InstrumentID     string
	UpdatedAt        time.Time
}
