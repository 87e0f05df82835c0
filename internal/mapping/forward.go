// Package mapping implements the property translation rules shared by the
// declaration normalizer and the current-config retriever. All functions
// are pure over their inputs except where mutation is documented.
package mapping

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/version"
)

// Options selects the translation direction for property names and truth
// values. With TranslateToNewID set, device tokens become booleans and keys
// are renamed to their declaration-facing names.
type Options struct {
	TranslateToNewID bool
}

// MapItem applies a config item's rules to one fetched device object.
// Single-value items collapse to the value of their first property.
func MapItem(item map[string]any, configItem catalog.ConfigItem, deviceVersion string, opts Options) (any, error) {
	if configItem.SingleValue {
		if len(configItem.Properties) == 0 {
			return nil, newError(configItem.Path, "singleValue item declares no properties")
		}
		return item[configItem.Properties[0].ID], nil
	}
	return MapForward(item, configItem.Properties, deviceVersion, opts)
}

// MapForward translates a device-native object through an ordered rule
// list. The input map is not modified. Rules gated behind a minVersion
// newer than deviceVersion are skipped entirely.
func MapForward(item map[string]any, rules []catalog.PropertyRule, deviceVersion string, opts Options) (map[string]any, error) {
	mapped := make(map[string]any, len(item))
	for k, v := range item {
		mapped[k] = v
	}

	for i := range rules {
		rule := &rules[i]

		if rule.MinVersion != "" && version.Compare(rule.MinVersion, deviceVersion) > 0 {
			continue
		}

		if rule.HasTruth() {
			if _, present := mapped[rule.ID]; present || !rule.SkipWhenOmitted {
				mapped[rule.ID] = mapTruth(mapped, rule, opts)
			}
		}

		hasVal := false
		if value, present := mapped[rule.ID]; present {
			if s, ok := value.(string); ok && strings.HasPrefix(s, catalog.PartitionPrefix) && !rule.RetainCommon {
				mapped[rule.ID] = s[len(catalog.PartitionPrefix):]
			}

			if len(rule.Transform) > 0 {
				transformed, err := transformValue(mapped[rule.ID], rule, opts)
				if err != nil {
					return nil, err
				}
				if !rule.TransformAsArray {
					mapped[rule.ID] = transformed
				} else {
					// array transforms carry exactly one rule; the
					// collapsed value lives under its key
					first := &rule.Transform[0]
					key := first.ID
					if opts.TranslateToNewID && first.NewID != "" {
						key = first.NewID
					}
					collapsed, _ := transformed.(map[string]any)
					mapped[rule.ID] = collapsed[key]
				}
			}
			hasVal = true
		} else if rule.DefaultWhenOmitted != nil {
			mapped[rule.ID] = rule.DefaultWhenOmitted
			hasVal = true
		}

		if hasVal && rule.StringToInt {
			n, err := toInt(mapped[rule.ID])
			if err != nil {
				return nil, newError(rule.ID, "%s", err)
			}
			mapped[rule.ID] = n
		}

		if opts.TranslateToNewID && hasVal && rule.NewID != "" {
			mapNewID(mapped, rule.ID, rule.NewID)
		}
	}

	return mapped, nil
}

func transformValue(current any, rule *catalog.PropertyRule, opts Options) (any, error) {
	if arr, ok := current.([]any); ok && !rule.TransformAsArray {
		out := make([]any, len(arr))
		for i, elem := range arr {
			transformed, err := transformValue(elem, rule, opts)
			if err != nil {
				return nil, err
			}
			out[i] = transformed
		}
		return out, nil
	}

	curMap, _ := current.(map[string]any)
	newProperty := map[string]any{}
	for i := range rule.Transform {
		trans := &rule.Transform[i]

		var value any
		if curMap != nil {
			value = curMap[trans.ID]
		}

		if trans.Capture != "" {
			re, err := regexp.Compile(trans.Capture)
			if err != nil {
				return nil, newError(trans.ID, "bad capture regex %q: %s", trans.Capture, err)
			}
			source, _ := curMap[trans.CaptureProperty].(string)
			match := re.FindStringSubmatch(source)
			if match == nil {
				continue
			}
			value = match[len(match)-1]
		}

		if trans.Extract != "" {
			if rule.TransformAsArray {
				arr, _ := current.([]any)
				extracted := make([]any, 0, len(arr))
				for _, elem := range arr {
					if obj, ok := elem.(map[string]any); ok {
						extracted = append(extracted, obj[trans.Extract])
					}
				}
				value = extracted
			} else if curMap != nil {
				value = curMap[trans.Extract]
			}
		}

		if len(trans.RemoveKeys) > 0 {
			DeleteKeys(value, trans.RemoveKeys)
		}

		if trans.HasTruth() {
			value = mapTruth(curMap, trans, opts)
		}

		key := trans.ID
		if opts.TranslateToNewID && trans.NewID != "" {
			key = trans.NewID
		}
		newProperty[key] = value
	}
	return newProperty, nil
}

// mapTruth converts between device tokens (enabled/disabled and the like)
// and booleans. An already-boolean value passes through unchanged in
// translate mode, so repeated forward mapping is a no-op.
func mapTruth(item map[string]any, rule *catalog.PropertyRule, opts Options) any {
	value := item[rule.ID]
	if opts.TranslateToNewID {
		if b, ok := value.(bool); ok {
			return b
		}
		if !truthy(value) {
			return false
		}
		return value == rule.Truth
	}
	if truthy(value) {
		return value
	}
	return rule.Falsehood
}

func mapNewID(mapped map[string]any, id, newID string) {
	value := mapped[id]
	delete(mapped, id)
	if strings.Contains(newID, ".") {
		SetDeep(mapped, newID, value)
		return
	}
	mapped[newID] = value
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return true
	}
}

// toInt coerces a device value to a base-10 integer. Leading digits of a
// unit-suffixed string count ("128000k" reads as 128000); a value with no
// digits at all is an error.
func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		end := 0
		start := 0
		if strings.HasPrefix(v, "-") {
			start = 1
			end = 1
		}
		for end < len(v) && v[end] >= '0' && v[end] <= '9' {
			end++
		}
		if end == start {
			return 0, strconv.ErrSyntax
		}
		return strconv.Atoi(v[:end])
	default:
		return 0, strconv.ErrSyntax
	}
}
