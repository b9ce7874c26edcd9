// Package msgpack provides MessagePack encoding/decoding for Airport action
// bodies and DoExchange metadata.
package msgpack

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Decode deserializes MessagePack data into v, which must be a pointer.
//
// Example:
//
//	var params struct {
//	    SchemaName string `msgpack:"schema_name"`
//	}
//	err := msgpack.Decode(action.GetBody(), &params)
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty MessagePack data")
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode MessagePack: %w", err)
	}

	return nil
}

// Encode serializes v into MessagePack format.
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}

	return data, nil
}
