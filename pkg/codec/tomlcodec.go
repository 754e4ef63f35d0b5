package codec

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
)

type tomlCodec struct{}

// TOML is the codec for service configuration files.
var TOML Codec = tomlCodec{}

func (tomlCodec) Marshal(v any) ([]byte, error) { return toml.Marshal(v) }

func (tomlCodec) Unmarshal(data []byte, v any) error {
	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("toml decode: %w", err)
	}
	return nil
}

func (tomlCodec) ContentType() string { return "application/toml" }
