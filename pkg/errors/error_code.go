package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeInvalidParameter     ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102
	ErrCodeNoStrategies         ErrorCode = 103
	ErrCodeNoDataSource         ErrorCode = 104
	ErrCodeInvalidSignal        ErrorCode = 105
	ErrCodeInvalidTimeRange     ErrorCode = 106

	// Data errors (200-299)
	ErrCodeDataNotFound    ErrorCode = 200
	ErrCodeDataGap         ErrorCode = 201
	ErrCodeDataParseFailed ErrorCode = 202

	// Strategy errors (300-399)
	ErrCodeStrategyNotFound     ErrorCode = 300
	ErrCodeStrategyConfigError  ErrorCode = 301
	ErrCodeStrategyRuntimeError ErrorCode = 302

	// Risk rejections (400-499). These are expected, non-exceptional
	// outcomes of the gate; callers should treat them as "signal dropped",
	// not as a run failure.
	ErrCodeRejectedPositionLimit  ErrorCode = 400
	ErrCodeRejectedShortSale      ErrorCode = 401
	ErrCodeRejectedAggregateLimit ErrorCode = 402
	ErrCodeRejectedCapitalLimit   ErrorCode = 403
	ErrCodeInsufficientFunds      ErrorCode = 404
	ErrCodeRejectedDrawdown       ErrorCode = 405
	ErrCodeRejectedVolatility     ErrorCode = 406
	ErrCodeRejectedCorrelation    ErrorCode = 407

	// Live simulation errors (500-599)
	ErrCodeEngineAlreadyRunning ErrorCode = 500
	ErrCodeEngineNotRunning     ErrorCode = 501
	ErrCodeQuoteFetchFailed     ErrorCode = 502

	// Optimizer errors (600-699)
	ErrCodeEmptyGrid        ErrorCode = 600
	ErrCodeNoValidTrials    ErrorCode = 601
	ErrCodeInvalidFoldCount ErrorCode = 602

	// Internal faults (900-999)
	ErrCodeInternal ErrorCode = 900
)

// IsRejection reports whether the error carries a risk-rejection code.
// Rejections are produced by the risk gate when a proposed trade fails one
// of its checks; they never indicate a fault in the engine itself.
func IsRejection(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeRejectedPositionLimit && code <= ErrCodeRejectedCorrelation
}
