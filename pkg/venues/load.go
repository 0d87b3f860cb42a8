package venues

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/tenniscourt/slotwatch/pkg/browser"
)

// ConfigKey is the config section holding venue overrides and additions.
const ConfigKey = "venues"

// locatorHook lets config files write locators as "id=contents" strings.
func locatorHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(browser.Locator{}) {
		return data, nil
	}
	return browser.ParseLocator(reflect.ValueOf(data).String())
}

func decode(input interface{}, out *Venue) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			locatorHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		// Lists given in config replace the built-in ones instead of being merged into them.
		ZeroFields:       true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Load returns the built-in venues with the config's venues section applied on top.
// A section named after a built-in venue overrides only the keys it sets; any other
// name adds a venue that must be complete.
func Load(v *viper.Viper) ([]Venue, error) {
	list := Builtin()
	if v == nil || !v.IsSet(ConfigKey) {
		return list, nil
	}
	section, ok := v.Get(ConfigKey).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected a map of venue names", ConfigKey)
	}

	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	index := make(map[string]int, len(list))
	for i, venue := range list {
		index[venue.Name] = i
	}
	for _, name := range names {
		i, builtin := index[name]
		var venue Venue
		if builtin {
			venue = list[i]
		}
		if err := decode(section[name], &venue); err != nil {
			return nil, fmt.Errorf("venue %s: %w", name, err)
		}
		venue.Name = name
		if err := venue.Validate(); err != nil {
			return nil, err
		}
		if builtin {
			list[i] = venue
		} else {
			list = append(list, venue)
		}
	}
	return list, nil
}
