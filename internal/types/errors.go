package types

import (
	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace under which every router error is registered.
const ModuleName = "stablerouter"

// Registered router errors. Codes are stable; callers match with errors.Is.
var (
	ErrUnsupportedToken                       = errorsmod.Register(ModuleName, 2, "unsupported token")
	ErrInvalidIdleStrategy                    = errorsmod.Register(ModuleName, 3, "invalid idle strategy")
	ErrInvalidIndexForIdleStrategy            = errorsmod.Register(ModuleName, 4, "invalid index for idle strategy")
	ErrDepositUnderMinimum                    = errorsmod.Register(ModuleName, 5, "deposit under minimum")
	ErrNotReceiptOwner                        = errorsmod.Register(ModuleName, 6, "not receipt owner")
	ErrNotModerator                           = errorsmod.Register(ModuleName, 7, "not moderator")
	ErrWithdrawnAmountLowerThanExpectedAmount = errorsmod.Register(ModuleName, 8, "withdrawn amount lower than expected amount")
	ErrNothingToRebalance                     = errorsmod.Register(ModuleName, 9, "nothing to rebalance")
	ErrRouteNotFound                          = errorsmod.Register(ModuleName, 10, "route not found")
	ErrRoutedSwapFailed                       = errorsmod.Register(ModuleName, 11, "routed swap failed")
	ErrAllWithdrawalsFulfilled                = errorsmod.Register(ModuleName, 12, "all withdrawals fulfilled")
	ErrCycleNotClosableYet                    = errorsmod.Register(ModuleName, 13, "cycle not closable yet")
	ErrNewValueIsAboveMaxBps                  = errorsmod.Register(ModuleName, 14, "new value is above max bps")
	ErrSlippageValueIsAboveMaxBps             = errorsmod.Register(ModuleName, 15, "slippage value is above max bps")
	ErrMaxWithdrawFeeExceedsThreshold         = errorsmod.Register(ModuleName, 16, "max withdraw fee exceeds threshold")
	ErrMinWithdrawFeeExceedsMax               = errorsmod.Register(ModuleName, 17, "min withdraw fee exceeds max")

	ErrNothingToFulfill       = errorsmod.Register(ModuleName, 18, "nothing to fulfill")
	ErrCycleNotClosed         = errorsmod.Register(ModuleName, 19, "cycle not closed")
	ErrInsufficientShares     = errorsmod.Register(ModuleName, 20, "insufficient shares")
	ErrTokenAlreadySupported  = errorsmod.Register(ModuleName, 21, "token already supported")
	ErrTokenInUse             = errorsmod.Register(ModuleName, 22, "token in use")
	ErrIdleStrategyNotDrained = errorsmod.Register(ModuleName, 23, "idle strategy not drained")
	ErrInvalidStrategy        = errorsmod.Register(ModuleName, 24, "invalid strategy")
	ErrWithdrawFeeTooLow      = errorsmod.Register(ModuleName, 25, "withdraw fee too low")
	ErrBatchEmpty             = errorsmod.Register(ModuleName, 26, "batch is empty")
	ErrNothingToExecute       = errorsmod.Register(ModuleName, 27, "nothing to execute")
	ErrReceiptNotFound        = errorsmod.Register(ModuleName, 28, "receipt not found")
	ErrInvalidAmount          = errorsmod.Register(ModuleName, 29, "invalid amount")
	ErrReceiptAllocated       = errorsmod.Register(ModuleName, 30, "receipt already allocated")
	ErrStrategyNotDrained     = errorsmod.Register(ModuleName, 31, "strategy not drained")
	ErrSharesWorthless        = errorsmod.Register(ModuleName, 32, "outstanding shares are worthless")
)
