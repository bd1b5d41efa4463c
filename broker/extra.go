package broker

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeExtra decodes the Extra attributes into out, a pointer to a struct
// tagged with `mapstructure:"<attribute>"`. Values loaded from properties
// files are strings, so numbers, booleans and durations are parsed from
// their text form. Attributes out does not declare are ignored.
func (c ConnectorConfig) DecodeExtra(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("chanflow: %s connector for channel %q: %w", c.Role, c.Channel, err)
	}
	if err := dec.Decode(c.Extra); err != nil {
		return fmt.Errorf("chanflow: %s connector for channel %q: %w", c.Role, c.Channel, err)
	}
	return nil
}
