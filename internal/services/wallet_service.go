package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/ton"
)

const (
	proofNonceKeyPrefix = "ton:proof:nonce:"
	proofNonceTTL       = 10 * time.Minute
)

// WalletService manages proof-verified payout wallets. A user connects a
// wallet once via TON Connect; releases and refunds then default to it when
// no explicit destination is supplied.
type WalletService struct {
	userRepo *repositories.UserRepo
	rdb      *redis.Client
	cfg      *config.Config
	log      *zap.Logger
}

func NewWalletService(userRepo *repositories.UserRepo, rdb *redis.Client, cfg *config.Config, log *zap.Logger) *WalletService {
	return &WalletService{userRepo: userRepo, rdb: rdb, cfg: cfg, log: log}
}

// GeneratePayload issues a single-use nonce the wallet must sign into the
// proof payload.
func (s *WalletService) GeneratePayload(ctx context.Context, userID uuid.UUID) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, proofNonceKeyPrefix+userID.String(), nonce, proofNonceTTL).Err(); err != nil {
		return "", err
	}
	return nonce, nil
}

type ConnectWalletInput struct {
	Address         string // raw "0:hex"
	AddressFriendly string
	PublicKey       string
	Proof           ton.Proof
}

func (s *WalletService) ConnectWallet(ctx context.Context, userID uuid.UUID, in ConnectWalletInput) (*models.User, error) {
	nonceKey := proofNonceKeyPrefix + userID.String()
	nonce, err := s.rdb.Get(ctx, nonceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("proof payload expired, request a new one")
	}
	if in.Proof.Payload != nonce {
		return nil, fmt.Errorf("proof payload mismatch")
	}

	workchain, addrHash, err := ton.ParseRawAddress(in.Address)
	if err != nil {
		return nil, err
	}
	if err := ton.VerifyProof(in.PublicKey, addrHash, workchain, in.Proof, s.cfg.TonProofDomains); err != nil {
		return nil, err
	}

	// Nonce is single-use.
	_ = s.rdb.Del(ctx, nonceKey).Err()

	now := time.Now()
	if err := s.userRepo.SetWallet(ctx, userID, in.Address, in.AddressFriendly, now); err != nil {
		return nil, err
	}

	s.log.Info("wallet connected",
		zap.String("user_id", userID.String()),
		zap.String("address", in.Address))

	return s.userRepo.GetByID(ctx, userID)
}

func (s *WalletService) DisconnectWallet(ctx context.Context, userID uuid.UUID) error {
	return s.userRepo.ClearWallet(ctx, userID)
}
