package domain

import "github.com/shopspring/decimal"

// WalletStatus of a pool member at runtime.
type WalletStatus string

const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletInactive WalletStatus = "INACTIVE"
	WalletError    WalletStatus = "ERROR"
	WalletDisabled WalletStatus = "DISABLED"
)

// WalletConfig is the static description of one signing identity.
// PrivateKey is credential material; it is normally injected from the
// environment, not the config file.
type WalletConfig struct {
	ID                 string
	Name               string
	PrivateKey         string
	Subaccount         string
	Enabled            bool
	MaxOrdersPerMarket int // 0 disables the cap
	BalanceThreshold   decimal.Decimal
}

// WalletState is the runtime view of a wallet: resolved address, status,
// balance snapshot and cumulative activity counters.
type WalletState struct {
	Config       WalletConfig
	Address      string
	Status       WalletStatus
	Balances     map[string]decimal.Decimal // keyed by token denom
	OrdersPlaced int64
	Volume       decimal.Decimal
}

// NewWalletState builds the initial runtime state for a configured wallet.
func NewWalletState(cfg WalletConfig) *WalletState {
	status := WalletInactive
	if !cfg.Enabled {
		status = WalletDisabled
	}
	return &WalletState{
		Config:   cfg,
		Status:   status,
		Balances: make(map[string]decimal.Decimal),
		Volume:   decimal.Zero,
	}
}

// WalletBinding resolves which wallet submits an order: a fixed identity or
// auto-selection from the pool. The zero value is AutoSelect.
type WalletBinding struct {
	walletID string
}

// FixedWallet binds to one wallet id.
func FixedWallet(id string) WalletBinding {
	return WalletBinding{walletID: id}
}

// AutoSelect lets the pool pick the wallet round-robin.
func AutoSelect() WalletBinding {
	return WalletBinding{}
}

// WalletID returns the bound wallet id, or false for auto-selection.
func (b WalletBinding) WalletID() (string, bool) {
	return b.walletID, b.walletID != ""
}
