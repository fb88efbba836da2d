// =============================
// File: internal/factory/factory.go
// =============================

// Package factory deploys token/pool pairs, keeps the token<->pool registry,
// and relays all platform fee income to the treasury. Creation is two-phase:
// the pool shell is deployed first, the token is minted against the shell's
// address, then the shell is initialized with the token — resolving the
// circular dependency without a true cycle.
package factory

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/amm"
	"github.com/snowball-dex/launchpad/internal/core"
	"github.com/snowball-dex/launchpad/internal/pool"
	"github.com/snowball-dex/launchpad/internal/token"
)

// TokenParams is the caller-supplied metadata for a launch.
type TokenParams struct {
	Name     string
	Symbol   string
	Category string
}

// Defaults are the economics applied to pools created from now on. Updating
// them never touches existing pools.
type Defaults struct {
	Pool        pool.Config
	TotalSupply *uint256.Int
	Decimals    uint8
}

// Factory owns the registry and the creation flow.
type Factory struct {
	addr     common.Address
	treasury common.Address

	mu           sync.Mutex
	owner        common.Address
	pendingOwner common.Address
	creationFee  *uint256.Int
	defaults     Defaults
	nonce        uint64

	tokens      map[common.Address]*token.Token
	pools       map[common.Address]*pool.Pool
	tokenToPool map[common.Address]common.Address
	poolToToken map[common.Address]common.Address
	categories  []string

	bank   *core.Bank
	market amm.AMM
	clock  core.Clock
	events core.EventSink
	logger *zap.Logger
}

func New(owner, treasury common.Address, creationFee *uint256.Int, defaults Defaults,
	bank *core.Bank, market amm.AMM, clock core.Clock, events core.EventSink, logger *zap.Logger) (*Factory, error) {
	if owner == core.ZeroAddress || treasury == core.ZeroAddress {
		return nil, core.ErrZeroAddress
	}
	if err := defaults.Pool.Validate(); err != nil {
		return nil, err
	}
	f := &Factory{
		addr:        core.NamedAddress("launchpad/factory"),
		treasury:    treasury,
		owner:       owner,
		creationFee: creationFee.Clone(),
		defaults:    defaults,
		tokens:      make(map[common.Address]*token.Token),
		pools:       make(map[common.Address]*pool.Pool),
		tokenToPool: make(map[common.Address]common.Address),
		poolToToken: make(map[common.Address]common.Address),
		categories:  []string{"meme", "utility", "defi"},
		bank:        bank,
		market:      market,
		clock:       clock,
		events:      events,
		logger:      logger.Named("factory"),
	}
	bank.RegisterReceiver(f.addr, f)
	return f, nil
}

// CreateToken launches a new token/pool pair for `caller` as creator. The
// attached value must cover the creation fee and is forwarded in full to the
// treasury.
func (f *Factory) CreateToken(caller common.Address, value *uint256.Int, params TokenParams) (tokenAddr, poolAddr common.Address, err error) {
	if caller == core.ZeroAddress {
		return common.Address{}, common.Address{}, core.ErrZeroAddress
	}
	if params.Name == "" || params.Symbol == "" {
		return common.Address{}, common.Address{}, core.ErrEmptyMetadata
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if value == nil || value.Lt(f.creationFee) {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: need %s", core.ErrFeeTooLow, f.creationFee)
	}
	if params.Category != "" && !f.hasCategoryLocked(params.Category) {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: unknown category %q", core.ErrEmptyMetadata, params.Category)
	}

	// Phase 1: pool shell, so the token constructor has its owner address.
	f.nonce++
	poolAddr = core.DeriveAddress(f.addr, f.nonce)
	p := pool.NewShell(poolAddr, f.addr, f.bank, f.market, f.clock, f.events, f.logger)

	// Phase 2: token minted entirely to the pool.
	f.nonce++
	tokenAddr = core.DeriveAddress(f.addr, f.nonce)
	tok, err := token.New(tokenAddr, params.Name, params.Symbol, f.defaults.Decimals,
		caller, poolAddr, f.defaults.TotalSupply, f.logger)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}

	// Phase 3: one-time initialization with the frozen defaults.
	if err := p.Initialize(f.addr, tok, caller, f.defaults.Pool); err != nil {
		return common.Address{}, common.Address{}, err
	}

	f.tokens[tokenAddr] = tok
	f.pools[poolAddr] = p
	f.tokenToPool[tokenAddr] = poolAddr
	f.poolToToken[poolAddr] = tokenAddr

	// Creation fee goes straight to the treasury.
	if err := f.bank.Pay(caller, f.treasury, value); err != nil {
		delete(f.tokens, tokenAddr)
		delete(f.pools, poolAddr)
		delete(f.tokenToPool, tokenAddr)
		delete(f.poolToToken, poolAddr)
		return common.Address{}, common.Address{}, fmt.Errorf("creation fee: %w", err)
	}

	f.events.Record(core.NewEvent(core.EvTokenCreated, f.clock.BlockNumber(), map[string]interface{}{
		"token":    tokenAddr.Hex(),
		"pool":     poolAddr.Hex(),
		"creator":  caller.Hex(),
		"name":     params.Name,
		"symbol":   params.Symbol,
		"category": params.Category,
		"fee":      value.String(),
	}))
	f.logger.Info("token created",
		zap.String("token", tokenAddr.Hex()),
		zap.String("pool", poolAddr.Hex()),
		zap.String("symbol", params.Symbol),
		zap.String("creator", caller.Hex()))
	return tokenAddr, poolAddr, nil
}

// OnReceive treats any plain value transfer to the factory as trading-fee
// income and forwards it in full to the treasury.
func (f *Factory) OnReceive(from common.Address, amount *uint256.Int) error {
	if err := f.bank.Pay(f.addr, f.treasury, amount); err != nil {
		return fmt.Errorf("treasury forward: %w", err)
	}
	f.events.Record(core.NewEvent(core.EvFeeForwarded, f.clock.BlockNumber(), map[string]interface{}{
		"from":   from.Hex(),
		"amount": amount.String(),
	}))
	return nil
}

// Registry views consumed by the wrapper and the router.

func (f *Factory) Address() common.Address { return f.addr }

func (f *Factory) TokenToPool(tokenAddr common.Address) (common.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.tokenToPool[tokenAddr]
	return p, ok
}

func (f *Factory) IsRegisteredPool(poolAddr common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pools[poolAddr]
	return ok
}

func (f *Factory) CurrentCreationFee() *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creationFee.Clone()
}

// PoolAt returns the pool object for a registered pool address.
func (f *Factory) PoolAt(poolAddr common.Address) (*pool.Pool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[poolAddr]
	return p, ok
}

// TokenAt satisfies amm.TokenResolver.
func (f *Factory) TokenAt(tokenAddr common.Address) (*token.Token, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[tokenAddr]
	return tok, ok
}

// Pools snapshots all registered pools.
func (f *Factory) Pools() []*pool.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*pool.Pool, 0, len(f.pools))
	for _, p := range f.pools {
		out = append(out, p)
	}
	return out
}

func (f *Factory) Categories() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.categories...)
}

// Admin surface.

func (f *Factory) SetCreationFee(caller common.Address, fee *uint256.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return core.ErrNotOwner
	}
	f.creationFee = fee.Clone()
	f.recordAdminLocked("creation_fee", fee.String())
	return nil
}

func (f *Factory) SetTreasury(caller, treasury common.Address) error {
	if treasury == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return core.ErrNotOwner
	}
	f.treasury = treasury
	f.recordAdminLocked("treasury", treasury.Hex())
	return nil
}

// SetDefaults replaces the economics for future pools only.
func (f *Factory) SetDefaults(caller common.Address, defaults Defaults) error {
	if err := defaults.Pool.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return core.ErrNotOwner
	}
	f.defaults = defaults
	f.recordAdminLocked("defaults", "updated")
	return nil
}

func (f *Factory) SetPoolPaused(caller, poolAddr common.Address, paused bool) error {
	f.mu.Lock()
	if caller != f.owner {
		f.mu.Unlock()
		return core.ErrNotOwner
	}
	p, ok := f.pools[poolAddr]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: pool %s", core.ErrNotRegistered, poolAddr.Hex())
	}
	return p.SetPaused(f.addr, paused)
}

func (f *Factory) AddCategory(caller common.Address, category string) error {
	if category == "" {
		return core.ErrEmptyMetadata
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return core.ErrNotOwner
	}
	if f.hasCategoryLocked(category) {
		return fmt.Errorf("%w: category %q", core.ErrAlreadyRegistered, category)
	}
	f.categories = append(f.categories, category)
	return nil
}

// TransferOwnership starts the 2-step handover.
func (f *Factory) TransferOwnership(caller, next common.Address) error {
	if next == core.ZeroAddress {
		return core.ErrZeroAddress
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return core.ErrNotOwner
	}
	f.pendingOwner = next
	return nil
}

func (f *Factory) AcceptOwnership(caller common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.pendingOwner || caller == core.ZeroAddress {
		return core.ErrNotOwner
	}
	f.owner = caller
	f.pendingOwner = core.ZeroAddress
	f.recordAdminLocked("owner", caller.Hex())
	return nil
}

func (f *Factory) hasCategoryLocked(category string) bool {
	for _, c := range f.categories {
		if c == category {
			return true
		}
	}
	return false
}

func (f *Factory) recordAdminLocked(key, value string) {
	f.events.Record(core.NewEvent(core.EvAdminChange, f.clock.BlockNumber(), map[string]interface{}{
		"component": "factory",
		"key":       key,
		"value":     value,
	}))
}
