package mapping

import (
	"strings"

	"github.com/opendevice/onboard/internal/catalog"
)

// UpdateIDs translates a declaration-shaped object back to device-native
// property names and tokens, using every catalog entry that contributes to
// the schema class. The object is modified in place and returned. itemName
// is the declaration instance name; it replaces the object's name property
// when a rule claims "name" as its declaration-facing id.
func UpdateIDs(items []catalog.ConfigItem, schemaClass string, declItem map[string]any, itemName string) map[string]any {
	if declItem == nil {
		return nil
	}

	for idx := range items {
		item := &items[idx]
		if item.SchemaClass != schemaClass {
			continue
		}
		if !mergeApplies(item.SchemaMerge, declItem) {
			continue
		}

		target := declItem
		if item.SchemaMerge != nil && len(item.SchemaMerge.Path) > 0 {
			nested, ok := GetDeep(declItem, strings.Join(item.SchemaMerge.Path, "."))
			if !ok {
				continue
			}
			nestedMap, ok := nested.(map[string]any)
			if !ok {
				continue
			}
			target = nestedMap
		}

		for i := range item.Properties {
			rule := &item.Properties[i]
			applyReverse(target, rule, itemName)

			if rule.DereferenceID == "" {
				continue
			}
			refRules, ok := item.References[rule.ID]
			if !ok {
				continue
			}
			if arr, ok := target[rule.DereferenceID].([]any); ok {
				for _, elem := range arr {
					obj, ok := elem.(map[string]any)
					if !ok {
						continue
					}
					for j := range refRules {
						applyReverse(obj, &refRules[j], itemName)
					}
				}
			}
		}
	}

	return declItem
}

func mergeApplies(merge *catalog.SchemaMerge, declItem map[string]any) bool {
	if merge == nil || merge.SpecificTo == nil {
		return true
	}
	value, _ := declItem[merge.SpecificTo.Property].(string)
	return value == merge.SpecificTo.Value
}

// applyReverse undoes one forward rule on an object: the declaration-facing
// key moves back to the device-native id and booleans become device tokens.
func applyReverse(obj map[string]any, rule *catalog.PropertyRule, itemName string) {
	// upLevel transforms were flattened into the parent on the way
	// forward, so their rules reverse directly against it
	if rule.UpLevel > 0 && len(rule.Transform) > 0 {
		for i := range rule.Transform {
			applyReverse(obj, &rule.Transform[i], itemName)
		}
		return
	}

	if rule.NewID == "name" {
		if current, ok := obj["name"]; ok {
			obj[rule.ID] = current
			obj["name"] = itemName
		}
		return
	}

	value, found := takeValue(obj, rule)
	if !found {
		if rule.HasTruth() && !rule.SkipWhenOmitted {
			obj[rule.ID] = rule.Falsehood
		}
		return
	}

	if len(rule.Transform) > 0 {
		value = reverseTransform(value, rule.Transform, itemName)
	}

	if rule.HasTruth() {
		if b, ok := value.(bool); ok {
			if b {
				value = rule.Truth
			} else {
				value = rule.Falsehood
			}
		}
	}

	obj[rule.ID] = value
}

// takeValue removes and returns the declaration-facing value for a rule.
// Dotted ids collapse their nesting; emptied parents are pruned.
func takeValue(obj map[string]any, rule *catalog.PropertyRule) (any, bool) {
	if rule.NewID != "" && strings.Contains(rule.NewID, ".") {
		value, ok := GetDeep(obj, rule.NewID)
		if ok {
			DeleteDeep(obj, rule.NewID)
		}
		return value, ok
	}

	key := rule.ID
	if rule.NewID != "" {
		key = rule.NewID
	}
	value, ok := obj[key]
	if ok && key != rule.ID {
		delete(obj, key)
	}
	return value, ok
}

func reverseTransform(value any, rules []catalog.PropertyRule, itemName string) any {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			reverseTransform(elem, rules, itemName)
		}
		return v
	case map[string]any:
		for i := range rules {
			applyReverse(v, &rules[i], itemName)
		}
		return v
	default:
		return value
	}
}
