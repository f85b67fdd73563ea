package model

import "fmt"

// Amount is a monetary value in nano-coins. Keeping money integral makes
// pot and fee arithmetic exact; fees are expressed in basis points.
type Amount int64

// NanosPerCoin is the number of nano-coins in one coin.
const NanosPerCoin = 1_000_000_000

// Coins builds an Amount from whole coins.
func Coins(n int64) Amount {
	return Amount(n * NanosPerCoin)
}

// BasisPoints returns the given fraction of a, in basis points (1bp = 0.01%).
func (a Amount) BasisPoints(bp int64) Amount {
	return Amount(int64(a) * bp / 10_000)
}

// Float returns the amount in coins as a float, for display only.
func (a Amount) Float() float64 {
	return float64(a) / NanosPerCoin
}

// String renders the amount in coins with nano precision trimmed.
func (a Amount) String() string {
	n := int64(a)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	whole := n / NanosPerCoin
	frac := n % NanosPerCoin
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	return fmt.Sprintf("%s%d.%09d", sign, whole, frac)
}
