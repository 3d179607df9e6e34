package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent is returned by UnpackLog for logs whose first topic matches no event of the codec's ABI.
var ErrUnknownEvent = errors.New("unknown event")

// Codec encodes calls to and decodes results from one contract. The set of functions it accepts is
// exactly the set declared in the ABI it was built from.
type Codec struct {
	name string
	abi  abi.ABI
}

// NewCodec parses abiJSON, which may be a bare ABI array or a hardhat artifact with an "abi" field.
func NewCodec(name string, abiJSON []byte) (*Codec, error) {
	raw := bytes.TrimSpace(abiJSON)
	if len(raw) > 0 && raw[0] == '{' {
		artifact, err := abiFromArtifact(raw)
		if err != nil {
			return nil, fmt.Errorf("%s abi artifact: %w", name, err)
		}
		raw = artifact
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", name, err)
	}
	return &Codec{name: name, abi: parsed}, nil
}

// MustCodec panics if the embedded ABI does not parse.
func MustCodec(name string, abiJSON []byte) *Codec {
	c, err := NewCodec(name, abiJSON)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec) Name() string {
	return c.name
}

// Encode builds the calldata for method with the given Go-typed arguments.
func (c *Codec) Encode(method string, args ...interface{}) ([]byte, error) {
	if _, ok := c.abi.Methods[method]; !ok {
		return nil, validationErrorf("%s has no function %q", c.name, method)
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, validationErrorf("encode %s.%s: %v", c.name, method, err)
	}
	return data, nil
}

// Decode unpacks the return tuple of method. Empty return data, or data shorter than the static head of
// the output tuple, means the call reverted or hit an address without code.
func (c *Codec) Decode(method string, ret []byte) ([]interface{}, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, validationErrorf("%s has no function %q", c.name, method)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: %s.%s returned no data", ErrContractRevert, c.name, method)
	}
	if want := 32 * len(m.Outputs); len(ret) < want {
		return nil, fmt.Errorf("%w: %s.%s returned %d bytes, want at least %d", ErrContractRevert, c.name, method, len(ret), want)
	}
	values, err := m.Outputs.Unpack(ret)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s.%s: %v", ErrContractRevert, c.name, method, err)
	}
	if len(values) != len(m.Outputs) {
		return nil, fmt.Errorf("%w: %s.%s decoded %d values, want %d", ErrContractRevert, c.name, method, len(values), len(m.Outputs))
	}
	return values, nil
}

// DecodeHex is Decode for 0x-prefixed hex return data as carried in JSON-RPC envelopes.
func (c *Codec) DecodeHex(method, ret string) ([]interface{}, error) {
	ret = strings.TrimSpace(ret)
	if ret == "" || ret == "0x" {
		return c.Decode(method, nil)
	}
	raw, err := hexutil.Decode(ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s return data: %v", ErrContractRevert, c.name, method, err)
	}
	return c.Decode(method, raw)
}

// MethodByID resolves calldata to the method it invokes.
func (c *Codec) MethodByID(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, validationErrorf("calldata shorter than a selector")
	}
	return c.abi.MethodById(data[:4])
}

// EncodeOutput packs return values for method. Used by FakeNode to answer eth_call.
func (c *Codec) EncodeOutput(method string, values ...interface{}) ([]byte, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, validationErrorf("%s has no function %q", c.name, method)
	}
	return m.Outputs.Pack(values...)
}

// EventID returns the topic hash of the named event, or the zero hash if the ABI does not declare it.
func (c *Codec) EventID(name string) common.Hash {
	ev, ok := c.abi.Events[name]
	if !ok {
		return common.Hash{}
	}
	return ev.ID
}

// UnpackLog matches the log's first topic against the ABI's events and returns the event name together
// with its indexed and non-indexed fields keyed by argument name.
func (c *Codec) UnpackLog(lg *types.Log) (string, map[string]interface{}, error) {
	if lg == nil || len(lg.Topics) == 0 {
		return "", nil, ErrUnknownEvent
	}
	ev, err := c.abi.EventByID(lg.Topics[0])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownEvent, lg.Topics[0].Hex())
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return ev.Name, nil, fmt.Errorf("%w: %s has %d topics, want %d", ErrContractRevert, ev.Name, len(lg.Topics)-1, len(indexed))
	}

	fields := make(map[string]interface{}, len(ev.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return ev.Name, nil, fmt.Errorf("%w: %s topics: %v", ErrContractRevert, ev.Name, err)
	}
	if err := ev.Inputs.UnpackIntoMap(fields, lg.Data); err != nil {
		return ev.Name, nil, fmt.Errorf("%w: %s data: %v", ErrContractRevert, ev.Name, err)
	}
	return ev.Name, fields, nil
}

func abiFromArtifact(raw []byte) ([]byte, error) {
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, err
	}
	if len(artifact.ABI) == 0 {
		return nil, errors.New("artifact has no abi field")
	}
	return artifact.ABI, nil
}

// BigValue asserts a decoded uint256/int256 value.
func BigValue(v interface{}) (*big.Int, error) {
	b, ok := v.(*big.Int)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: expected uint256, got %T", ErrContractRevert, v)
	}
	return b, nil
}

// Uint64Value asserts a decoded uint256 that must fit in 64 bits.
func Uint64Value(v interface{}) (uint64, error) {
	b, err := BigValue(v)
	if err != nil {
		return 0, err
	}
	if b.Sign() < 0 || !b.IsUint64() {
		return 0, fmt.Errorf("%w: value %s out of range", ErrContractRevert, b)
	}
	return b.Uint64(), nil
}

// AddressValue asserts a decoded address value and normalizes it.
func AddressValue(v interface{}) (Address, error) {
	a, ok := v.(common.Address)
	if !ok {
		return "", fmt.Errorf("%w: expected address, got %T", ErrContractRevert, v)
	}
	return FromCommon(a), nil
}

// StringValue asserts a decoded string value.
func StringValue(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrContractRevert, v)
	}
	return s, nil
}

// BoolValue asserts a decoded bool value.
func BoolValue(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %T", ErrContractRevert, v)
	}
	return b, nil
}
