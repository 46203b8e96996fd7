package services

import (
	"context"
	"log"
	"strings"

	"github.com/Cyvadra/tv-autotrade/broker"
	"github.com/Cyvadra/tv-autotrade/internal/models"
)

// AccountStatus is a user's exchange connection summary
type AccountStatus struct {
	Connected        bool              `json:"connected"`
	Exchange         string            `json:"exchange,omitempty"`
	Asset            string            `json:"asset,omitempty"`
	AvailableBalance float64           `json:"available_balance"`
	OpenPositions    int               `json:"open_positions"`
	Positions        []broker.Position `json:"positions,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// AccountService reports exchange connectivity for a user
type AccountService struct {
	gateways broker.GatewayFactory
	logger   *log.Logger
}

// NewAccountService creates an account service
func NewAccountService(gateways broker.GatewayFactory) *AccountService {
	return &AccountService{
		gateways: gateways,
		logger:   log.New(log.Writer(), "[AccountService] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (s *AccountService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Status queries balances and open positions. Exchange failures are reported
// in the status, not as errors.
func (s *AccountService) Status(ctx context.Context, user *models.User) *AccountStatus {
	if !user.HasCredentials() {
		return &AccountStatus{Error: ErrNoCredentials.Error()}
	}

	gw, err := s.gateways.New(user.Credentials())
	if err != nil {
		return &AccountStatus{Error: err.Error()}
	}
	status := &AccountStatus{Exchange: gw.Name()}

	balances, err := gw.GetBalances(ctx)
	if err != nil {
		s.logger.Printf("Balance check for user %s failed: %v", user.ID, err)
		status.Error = err.Error()
		return status
	}
	status.Connected = true
	for _, b := range balances {
		asset := strings.ToUpper(b.AssetSymbol)
		if asset != "USDT" && asset != "USD" {
			continue
		}
		// prefer USDT when both are present
		if status.Asset == "" || asset == "USDT" {
			status.Asset = asset
			status.AvailableBalance = float64(b.AvailableBalance)
		}
	}

	for _, inst := range models.SupportedInstruments {
		positions, err := gw.GetPositions(ctx, inst)
		if err != nil {
			s.logger.Printf("Position check for user %s on %s failed: %v", user.ID, inst, err)
			status.Error = err.Error()
			continue
		}
		for _, p := range positions {
			if p.Size != 0 {
				status.Positions = append(status.Positions, p)
			}
		}
	}
	status.OpenPositions = len(status.Positions)
	return status
}

// Products lists the perpetual contracts of the supported instruments
func (s *AccountService) Products(ctx context.Context, user *models.User) ([]broker.Product, error) {
	if !user.HasCredentials() {
		return nil, ErrNoCredentials
	}
	gw, err := s.gateways.New(user.Credentials())
	if err != nil {
		return nil, err
	}

	catalog, err := gw.GetProducts(ctx)
	if err != nil {
		s.logger.Printf("Product catalog for user %s failed: %v", user.ID, err)
		return nil, err
	}

	products := make([]broker.Product, 0, len(models.SupportedInstruments))
	for _, p := range catalog {
		if p.Kind() != broker.ContractPerpetual {
			continue
		}
		symbol := strings.ToUpper(p.Symbol)
		for _, inst := range models.SupportedInstruments {
			if strings.HasPrefix(symbol, inst) {
				products = append(products, p)
				break
			}
		}
	}
	return products, nil
}
