package database

import (
	"database/sql/driver"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

// Uint256 stores a 256-bit unsigned integer in a postgres numeric column
// without losing precision. The zero value is 0.
type Uint256 struct {
	big.Int
}

func NewUint256(i int64) Uint256 {
	var u Uint256
	u.SetInt64(i)
	return u
}

func NewUint256FromBig(b *big.Int) Uint256 {
	var u Uint256
	if b != nil {
		u.Set(b)
	}
	return u
}

func (u Uint256) Value() (driver.Value, error) {
	return u.String(), nil
}

func (u *Uint256) Scan(src interface{}) error {
	if src == nil {
		u.SetInt64(0)
		return nil
	}

	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		u.SetInt64(v)
		return nil
	default:
		return errors.Errorf("cannot scan %T into Uint256", src)
	}

	if _, ok := u.SetString(s, 10); !ok {
		return errors.Errorf("invalid numeric value %q", s)
	}

	return nil
}

// GormDataType tells gorm the column type. numeric(79) holds any uint256.
func (Uint256) GormDataType() string {
	return "numeric(79,0)"
}

func (u Uint256) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", u.String())), nil
}

func (u *Uint256) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if _, ok := u.SetString(s, 10); !ok {
		return errors.Errorf("invalid uint256 %q", string(data))
	}

	return nil
}
