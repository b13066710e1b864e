package auth

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// L2Creds is the derived API key triplet used for HMAC-signed trading
// requests, mirroring what the venue's /auth/derive-api-key returns.
type L2Creds struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// OnchainSigner handles the onchain venue's two-layer authentication:
// an EIP-712 signature over a wallet's private key (used once, to derive
// L2 credentials) and HMAC-SHA256 request signing for everyday trading
// calls. Grounded on
// 0xtitan6-polymarket-mm/internal/exchange/auth.go's Auth type.
type OnchainSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	funder     common.Address
	chainID    *big.Int
	creds      L2Creds
}

// NewOnchainSigner parses a hex-encoded EOA private key (with or without
// a 0x prefix) and derives the signer's address.
func NewOnchainSigner(privateKeyHex, funderAddressHex string, chainID int64) (*OnchainSigner, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	pk, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("auth: parse onchain private key: %w", err)
	}

	address := crypto.PubkeyToAddress(pk.PublicKey)
	funder := address
	if funderAddressHex != "" {
		funder = common.HexToAddress(funderAddressHex)
	}

	return &OnchainSigner{
		privateKey: pk,
		address:    address,
		funder:     funder,
		chainID:    big.NewInt(chainID),
	}, nil
}

func (s *OnchainSigner) Address() common.Address       { return s.address }
func (s *OnchainSigner) FunderAddress() common.Address { return s.funder }
func (s *OnchainSigner) SetCredentials(c L2Creds)       { s.creds = c }
func (s *OnchainSigner) HasCredentials() bool {
	return s.creds.APIKey != "" && s.creds.Secret != "" && s.creds.Passphrase != ""
}

// L1Headers signs the one-time "ClobAuth" EIP-712 message used to
// derive L2 credentials.
func (s *OnchainSigner) L1Headers(nonce int) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := s.signClobAuth(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("auth: sign clob auth: %w", err)
	}
	return map[string]string{
		"poly-address":   s.address.Hex(),
		"poly-signature": sig,
		"poly-timestamp": timestamp,
		"poly-nonce":     strconv.Itoa(nonce),
	}, nil
}

// L2Headers builds the HMAC-signed headers required on every trading
// request once L2 credentials have been derived.
func (s *OnchainSigner) L2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := s.buildHMAC(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("auth: build hmac: %w", err)
	}
	return map[string]string{
		"poly-address":    s.address.Hex(),
		"poly-signature":  sig,
		"poly-timestamp":  timestamp,
		"poly-api-key":    s.creds.APIKey,
		"poly-passphrase": s.creds.Passphrase,
	}, nil
}

func (s *OnchainSigner) signClobAuth(timestamp string, nonce int) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
	}
	typesDef := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"ClobAuth": {
			{Name: "address", Type: "address"},
			{Name: "timestamp", Type: "string"},
			{Name: "nonce", Type: "uint256"},
			{Name: "message", Type: "string"},
		},
	}
	message := apitypes.TypedDataMessage{
		"address":   s.address.Hex(),
		"timestamp": timestamp,
		"nonce":     fmt.Sprintf("%d", nonce),
		"message":   "This message attests that I control the given wallet",
	}

	typedData := apitypes.TypedData{Types: typesDef, PrimaryType: "ClobAuth", Domain: domain, Message: message}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

func (s *OnchainSigner) buildHMAC(timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding,
	}
	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(s.creds.Secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path + body
	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
