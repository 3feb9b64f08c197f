// Package safedecoder interprets the payload of delegate calls into Safe
// master copies as named function calls of the Safe contract ABI.
package safedecoder

import (
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// ErrNotDecodable signals that a payload cannot be interpreted with any known
// Safe ABI. It is an expected answer, never a fatal condition.
var ErrNotDecodable = errors.New("data cannot be decoded")

// Decoder is the ABI-decode boundary. Decode returns the function name and
// its named arguments in a JSON-friendly form (addresses as hex strings,
// uint256 as decimal strings, bytes as 0x-prefixed hex), or ErrNotDecodable.
type Decoder interface {
	Decode(toAddress string, data []byte) (string, map[string]interface{}, error)
}

const selectorLength = 4

// SafeDecoder decodes against the known Gnosis Safe master copy ABIs, newest
// first.
type SafeDecoder struct {
	abis []abi.ABI
}

func New() (*SafeDecoder, error) {
	decoder := &SafeDecoder{}

	for _, definition := range []string{safeABIv1_1_1, safeABIv1_0_0} {
		parsed, err := abi.JSON(strings.NewReader(definition))
		if err != nil {
			return nil, errors.Wrap(err, "parsing Safe ABI")
		}

		decoder.abis = append(decoder.abis, parsed)
	}

	return decoder, nil
}

func (d *SafeDecoder) Decode(toAddress string, data []byte) (string, map[string]interface{}, error) {
	if len(data) < selectorLength {
		return "", nil, errors.Wrapf(ErrNotDecodable, "payload of %d bytes", len(data))
	}

	for i := range d.abis {
		method, err := d.abis[i].MethodById(data[:selectorLength])
		if err != nil {
			continue
		}

		values := make(map[string]interface{})
		if err := method.Inputs.UnpackIntoMap(values, data[selectorLength:]); err != nil {
			continue
		}

		arguments := make(map[string]interface{}, len(values))
		for name, value := range values {
			arguments[name] = normalize(value)
		}

		return method.Name, arguments, nil
	}

	return "", nil, errors.Wrapf(ErrNotDecodable, "selector %s", hexutil.Encode(data[:selectorLength]))
}

// normalize converts go-ethereum ABI values into JSON-safe representations.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case common.Address:
		return v.Hex()
	case []common.Address:
		addresses := make([]interface{}, len(v))
		for i, address := range v {
			addresses[i] = address.Hex()
		}
		return addresses
	case *big.Int:
		return v.String()
	case []byte:
		return hexutil.Encode(v)
	case uint8:
		return int(v)
	case bool, string:
		return v
	}

	// Fixed-size byte arrays ([32]byte and friends) and anything slice-like
	// that the explicit cases missed.
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Array, reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				buf[i] = byte(rv.Index(i).Uint())
			}
			return hexutil.Encode(buf)
		}

		elems := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems[i] = normalize(rv.Index(i).Interface())
		}
		return elems
	}

	return value
}
