package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type (
	Uint256    = uint256.Int
	OperatorID = string
)

var (
	ErrDuplicateOperator = errors.New("operator already registered")
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrBelowMinimumStake = errors.New("amount is below the minimum stake")
	ErrInsufficientStake = errors.New("insufficient stake")

	ErrNegativeAmount = fmt.Errorf("amount must be a non-negative integer")
	ErrAmountOverflow = fmt.Errorf("amount does not fit in 256 bits")
)

// MinStake is 1 unit of the base currency expressed in its smallest unit (1e18).
var MinStake = AmountFromUint64(1_000_000_000).MulUint64(1_000_000_000)

// Amount is a currency amount in the smallest unit. The zero value is zero.
type Amount struct {
	v uint256.Int
}

func NewAmount(v *uint256.Int) Amount {
	var a Amount
	if v != nil {
		a.v.Set(v)
	}
	return a
}

func AmountFromUint64(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// AmountFromString parses a base 10 integer string.
func AmountFromString(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return AmountFromBig(b)
}

func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrAmountOverflow
	}
	return NewAmount(v), nil
}

func MustAmount(s string) Amount {
	a, err := AmountFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Uint256() *uint256.Int {
	return a.v.Clone()
}

func (a Amount) ToBig() *big.Int {
	return a.v.ToBig()
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Lt(b Amount) bool {
	return a.v.Lt(&b.v)
}

func (a Amount) Gt(b Amount) bool {
	return a.v.Gt(&b.v)
}

func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	return out
}

// Sub returns a-b. Callers check a >= b first.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

func (a Amount) MulUint64(n uint64) Amount {
	var out Amount
	out.v.Mul(&a.v, uint256.NewInt(n))
	return out
}

func (a Amount) DivUint64(n uint64) Amount {
	var out Amount
	out.v.Div(&a.v, uint256.NewInt(n))
	return out
}

// Percent returns floor(a * pct / 100) without overflowing for pct <= 100.
func (a Amount) Percent(pct uint64) Amount {
	hundred := uint256.NewInt(100)
	var q, r uint256.Int
	q.Div(&a.v, hundred)
	r.Mod(&a.v, hundred)

	p := uint256.NewInt(pct)
	q.Mul(&q, p)
	r.Mul(&r, p)
	r.Div(&r, hundred)

	var out Amount
	out.v.Add(&q, &r)
	return out
}

func (a Amount) String() string {
	return a.v.ToBig().String()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(input []byte) error {
	parsed, err := AmountFromString(string(input))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both a decimal string and a bare JSON integer.
func (a *Amount) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(input, &n); err != nil {
			return fmt.Errorf("could not decode amount: %v", err)
		}
		s = n.String()
	}
	return a.UnmarshalText([]byte(s))
}

// Value stores amounts as NUMERIC text.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case []byte:
		return a.UnmarshalText(v)
	case string:
		return a.UnmarshalText([]byte(v))
	case int64:
		if v < 0 {
			return ErrNegativeAmount
		}
		*a = AmountFromUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

// TimeFromString parses either RFC3339 or unix seconds.
func TimeFromString(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return time.Unix(secs, 0).UTC(), nil
}
