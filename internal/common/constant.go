// Package common contains shared constants and sentinel errors used across
// gophenroll components.
package common

// APIKeyHeaderName carries the verification-service API key on outbound
// requests.
const APIKeyHeaderName = "X-API-Key"

// QuotaMetadataKey is the metadata key under which the last verification
// quota snapshot is stored.
const QuotaMetadataKey = "verification.quota"

// SaltMetadataKey is the metadata key of the per-installation sealing salt.
const SaltMetadataKey = "crypto.salt"

// VerifierMetadataKey stores a hash of the master key, used to reject a
// mistyped master password before anything is sealed with it.
const VerifierMetadataKey = "crypto.verifier"
