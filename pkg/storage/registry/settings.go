package registry

import (
	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes an account's settings map into a service's
// typed settings struct. Values are strings in configuration, so the
// decoder converts them weakly (e.g. "5432" into an int field).
func DecodeSettings(settings map[string]string, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(settings)
}
