package domain

import "errors"

// ErrorClass categorizes a failure at the exchange boundary.
type ErrorClass string

const (
	ErrClassAuth       ErrorClass = "AUTH"       // bad or expired credentials
	ErrClassPermission ErrorClass = "PERMISSION" // credential lacks (or exceeds) scope
	ErrClassRateLimit  ErrorClass = "RATE_LIMIT"
	ErrClassNetwork    ErrorClass = "NETWORK"
	ErrClassExchange   ErrorClass = "EXCHANGE" // exchange-reported business error
)

// RetriableError marks errors that a scheduler may safely re-invoke.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ExchangeError tags a failure with the originating exchange and error class.
// A page fetch failure aborts the whole paged sequence with one of these;
// re-invoking sync afterwards is safe because persistence is deduplicated.
type ExchangeError struct {
	Exchange ExchangeID
	Class    ErrorClass
	Op       string
	Err      error
}

func (e *ExchangeError) Error() string {
	return string(e.Exchange) + " " + e.Op + " [" + string(e.Class) + "]: " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IsRetriable reports whether the scheduler may re-run the failed call.
// Auth and permission problems need operator action first.
func (e *ExchangeError) IsRetriable() bool {
	return e.Class == ErrClassNetwork || e.Class == ErrClassRateLimit
}

// NewExchangeError wraps err with an exchange tag and class.
func NewExchangeError(exchange ExchangeID, class ErrorClass, op string, err error) *ExchangeError {
	return &ExchangeError{Exchange: exchange, Class: class, Op: op, Err: err}
}

// ErrorClassOf extracts the class from a wrapped ExchangeError, or "".
func ErrorClassOf(err error) ErrorClass {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Class
	}
	return ""
}

// ValidationError is a field-level input failure. Raised before any network
// call and never retriable.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "validation error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ValidationError) IsRetriable() bool {
	return false
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidSymbol is returned when a trading-pair symbol is malformed.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrUnknownExchange is returned by the factory for an unmapped exchange id.
	ErrUnknownExchange = errors.New("unknown exchange")

	// ErrCredentialRevoked is returned when a sync targets a revoked credential.
	ErrCredentialRevoked = errors.New("credential revoked")

	// ErrCredentialTooBroad is returned when a credential passes a privileged
	// probe that a deliberately under-privileged key must fail.
	ErrCredentialTooBroad = errors.New("credential scope too broad")
)
