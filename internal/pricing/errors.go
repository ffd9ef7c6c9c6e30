package pricing

import "fmt"

// InvalidReserveError is returned when a reserve pair cannot yield a price.
type InvalidReserveError struct {
	Reserve0 string
	Reserve1 string
}

func (e *InvalidReserveError) Error() string {
	return fmt.Sprintf("invalid reserves: reserve0=%s reserve1=%s", e.Reserve0, e.Reserve1)
}

// InvalidSqrtPriceError is returned for a zero or out-of-range sqrtPriceX96.
type InvalidSqrtPriceError struct {
	SqrtPriceX96 string
	Reason       string
}

func (e *InvalidSqrtPriceError) Error() string {
	return fmt.Sprintf("invalid sqrtPriceX96 %s: %s", e.SqrtPriceX96, e.Reason)
}
