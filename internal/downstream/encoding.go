package downstream

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

func encode(encoding string, v any) ([]byte, error) {
	switch encoding {
	case EncodingMsgpack:
		return msgpack.Marshal(v)
	case EncodingJSON, "":
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported encoding: %q", encoding)
	}
}
