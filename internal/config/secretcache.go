package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcarb/boxarb/pkg/crypto"
)

// credentialSnapshot is the subset of VenuesConfig worth caching locally
// so a restart doesn't require re-supplying every secret by hand; the
// RSA/signer key files themselves are never cached here, only the
// smaller fields alongside them.
type credentialSnapshot struct {
	ClobAPIKeyID        string `json:"clob_api_key_id"`
	ClobSeriesTicker    string `json:"clob_series_ticker"`
	OnchainFunderAddr   string `json:"onchain_funder_address"`
	OnchainL2APIKey     string `json:"onchain_l2_api_key"`
	OnchainL2Secret     string `json:"onchain_l2_secret"`
	OnchainL2Passphrase string `json:"onchain_l2_passphrase"`
}

// CacheCredentials encrypts the loaded venue credential fields with key
// and writes them to path, so a later restart can recover them via
// LoadCachedCredentials without the operator re-pasting every secret.
func CacheCredentials(path string, key []byte, venues VenuesConfig) error {
	snap := credentialSnapshot{
		ClobAPIKeyID:        venues.Clob.APIKeyID,
		ClobSeriesTicker:    venues.Clob.SeriesTicker,
		OnchainFunderAddr:   venues.Onchain.FunderAddress,
		OnchainL2APIKey:     venues.Onchain.L2APIKey,
		OnchainL2Secret:     venues.Onchain.L2Secret,
		OnchainL2Passphrase: venues.Onchain.L2Passphrase,
	}
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("config: marshal credential snapshot: %w", err)
	}
	ciphertext, err := crypto.Encrypt(string(plaintext), key)
	if err != nil {
		return fmt.Errorf("config: encrypt credential snapshot: %w", err)
	}
	if err := os.WriteFile(path, []byte(ciphertext), 0600); err != nil {
		return fmt.Errorf("config: write credential cache: %w", err)
	}
	return nil
}

// LoadCachedCredentials reads and decrypts a credential snapshot
// previously written by CacheCredentials, merging the recovered fields
// into venues wherever the live config didn't already set them.
func LoadCachedCredentials(path string, key []byte, venues *VenuesConfig) error {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read credential cache: %w", err)
	}
	plaintext, err := crypto.Decrypt(string(ciphertext), key)
	if err != nil {
		return fmt.Errorf("config: decrypt credential cache: %w", err)
	}
	var snap credentialSnapshot
	if err := json.Unmarshal([]byte(plaintext), &snap); err != nil {
		return fmt.Errorf("config: unmarshal credential snapshot: %w", err)
	}
	if venues.Clob.APIKeyID == "" {
		venues.Clob.APIKeyID = snap.ClobAPIKeyID
	}
	if venues.Clob.SeriesTicker == "" {
		venues.Clob.SeriesTicker = snap.ClobSeriesTicker
	}
	if venues.Onchain.FunderAddress == "" {
		venues.Onchain.FunderAddress = snap.OnchainFunderAddr
	}
	if venues.Onchain.L2APIKey == "" {
		venues.Onchain.L2APIKey = snap.OnchainL2APIKey
	}
	if venues.Onchain.L2Secret == "" {
		venues.Onchain.L2Secret = snap.OnchainL2Secret
	}
	if venues.Onchain.L2Passphrase == "" {
		venues.Onchain.L2Passphrase = snap.OnchainL2Passphrase
	}
	return nil
}
