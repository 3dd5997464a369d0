package config

import (
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free-form set of attributes for a camera or display implementation.
type AttributeMap map[string]interface{}

// Has reports whether the key is present.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// DecodeAttributes converts free-form attributes into the typed attribute struct T, matching keys by
// json tag. Unknown keys are an error so that typos do not pass silently.
func DecodeAttributes[T any](attributes AttributeMap) (T, error) {
	var out T
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	if len(md.Unused) != 0 {
		sort.Strings(md.Unused)
		return out, errors.Errorf("unknown attributes %q", md.Unused)
	}
	return out, nil
}
