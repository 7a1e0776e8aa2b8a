package vault

import (
	"errors"

	"VaultLedger/internal/interest"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/token"
)

var (
	// ErrInvalidCollateralAmount rejects zero or negative collateral amounts.
	ErrInvalidCollateralAmount = errors.New("vault: invalid collateral amount")

	// ErrInvalidAmount rejects zero or negative amounts on non-collateral paths.
	ErrInvalidAmount = errors.New("vault: invalid amount")

	// ErrInvalidAsset rejects assets the vault configuration does not know.
	ErrInvalidAsset = errors.New("vault: invalid asset")

	// ErrUnknownVault is returned for operations on an unregistered vault.
	ErrUnknownVault = errors.New("vault: unknown vault")

	// ErrVaultAlreadyExists rejects duplicate vault registration.
	ErrVaultAlreadyExists = errors.New("vault: vault already exists")

	// ErrUnknownPosition is returned when the position id was never allocated.
	ErrUnknownPosition = errors.New("vault: unknown position")

	// ErrNotOwner fires when the caller lacks the required role for the
	// operation (owner, position owner, or leverage delegate).
	ErrNotOwner = errors.New("vault: caller not authorized")

	// ErrLoanExceedsLTVLimit fires when debt value would exceed
	// collateralValue * ltvRatio / 100 at fresh oracle prices.
	ErrLoanExceedsLTVLimit = errors.New("vault: loan exceeds LTV limit")

	// ErrInsufficientCollateralAfterWithdrawal fires when removing collateral
	// would leave the position outside its borrow limit.
	ErrInsufficientCollateralAfterWithdrawal = errors.New("vault: insufficient collateral after withdrawal")

	// ErrAmountExceedsLoan rejects repayments above the outstanding debt.
	ErrAmountExceedsLoan = errors.New("vault: amount exceeds loan")

	// ErrPositionHealthy rejects liquidation of a position at or above the
	// liquidation threshold.
	ErrPositionHealthy = errors.New("vault: position healthy")

	// ErrReentrantCall fires when a token hook or swap router calls back into
	// a mutating ledger entry point mid-call.
	ErrReentrantCall = errors.New("vault: reentrant call")

	// ErrInvalidConfig rejects vault configurations violating
	// 0 < LTVRatio <= LiquidationThreshold or reward bounds.
	ErrInvalidConfig = errors.New("vault: invalid config")

	// ErrNoBorrowCapacity fires when a leverage iteration finds zero headroom.
	ErrNoBorrowCapacity = errors.New("vault: no borrow capacity")

	// ErrLeverageLimit rejects leverage outside [1, MAX_LEVERAGE].
	ErrLeverageLimit = errors.New("vault: leverage limit exceeded")

	// ErrSwapBelowMinimum fires when the total collateral acquired across the
	// leverage loop's swaps falls short of the caller's minimum.
	ErrSwapBelowMinimum = errors.New("vault: swap output below minimum")
)

// Kind buckets errors for metrics labels and API status mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindInvariant
	KindExternal
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindInvariant:
		return "invariant"
	case KindExternal:
		return "external"
	case KindCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// KindOf classifies a sentinel (possibly wrapped) into its error kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown

	case errors.Is(err, ErrInvalidCollateralAmount),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidAsset),
		errors.Is(err, ErrUnknownVault),
		errors.Is(err, ErrVaultAlreadyExists),
		errors.Is(err, ErrUnknownPosition),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrAmountExceedsLoan),
		errors.Is(err, interest.ErrVaultAlreadyRegistered),
		errors.Is(err, interest.ErrZeroInterestRate),
		errors.Is(err, interest.ErrNoInterestToCollect),
		errors.Is(err, interest.ErrUnknownVault),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, oracle.ErrUnknownAsset):
		return KindValidation

	case errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrReentrantCall),
		errors.Is(err, interest.ErrVaultNotCaller):
		return KindAuthorization

	case errors.Is(err, ErrLoanExceedsLTVLimit),
		errors.Is(err, ErrInsufficientCollateralAfterWithdrawal),
		errors.Is(err, ErrPositionHealthy):
		return KindInvariant

	case errors.Is(err, ErrSwapBelowMinimum),
		errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return KindExternal

	case errors.Is(err, ErrNoBorrowCapacity),
		errors.Is(err, ErrLeverageLimit):
		return KindCapacity

	default:
		return KindUnknown
	}
}
