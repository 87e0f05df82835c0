package configmgr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/mapping"
	"github.com/opendevice/onboard/internal/version"
)

// removeUnusedKeys strips device bookkeeping fields from a fetched object:
// any key ending in Reference, plus kind and selfLink, recursively. Nameless
// classes also lose their name field since they are stored without one.
func removeUnusedKeys(item map[string]any, nameless bool) map[string]any {
	filtered := mapping.CopyMap(item)
	pruneUnusedKeys(filtered, nameless)
	return filtered
}

func pruneUnusedKeys(value any, nameless bool) {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			if strings.HasSuffix(key, "Reference") || key == "kind" || key == "selfLink" || (nameless && key == "name") {
				delete(typed, key)
				continue
			}
			pruneUnusedKeys(child, nameless)
		}
	case []any:
		for _, child := range typed {
			pruneUnusedKeys(child, nameless)
		}
	}
}

// shouldIgnore reports whether a fetched object matches any of the item's
// ignore patterns.
func shouldIgnore(item map[string]any, ignores []catalog.IgnoreRule) bool {
	for _, ignore := range ignores {
		for property, pattern := range ignore {
			value, ok := item[property].(string)
			if !ok {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(value) {
				return true
			}
		}
	}
	return false
}

// inPartitions reports whether the object belongs to one of the item's
// declared partitions. Items without a partition list were already filtered
// by the device query.
func inPartitions(item map[string]any, partitions []string) bool {
	if len(partitions) == 0 {
		return true
	}
	partition, _ := item["partition"].(string)
	for _, candidate := range partitions {
		if candidate == partition {
			return true
		}
	}
	return false
}

// classPresent reports whether the declaration's Common tenant carries an
// entry of the given class.
func classPresent(declaration map[string]any, className string) bool {
	common, ok := declaration["Common"].(map[string]any)
	if !ok {
		return false
	}
	for _, entry := range common {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if obj[catalog.ClassKey] == className {
			return true
		}
	}
	return false
}

// checkRequiredModules reports whether every module the item requires is
// provisioned. Requirements with a maxVersion only apply up to that release;
// the device version is truncated to the same precision before comparing.
func checkRequiredModules(required []catalog.RequiredModule, currentModules []string, deviceVersion string) bool {
	for _, req := range required {
		if req.MaxVersion != "" {
			segments := len(strings.Split(req.MaxVersion, "."))
			truncated := version.Truncate(deviceVersion, segments)
			if version.Compare(truncated, req.MaxVersion) > 0 {
				continue
			}
		}
		found := false
		for _, module := range currentModules {
			if module == req.Module {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// patchSelfIp normalizes the allowService field: absent becomes "none" and a
// single-element ["default"] collapses to the string "default".
func patchSelfIp(selfIP map[string]any) map[string]any {
	patched := mapping.CopyMap(selfIP)
	allow, present := patched["allowService"]
	if !present || allow == nil {
		patched["allowService"] = "none"
		return patched
	}
	if list, ok := allow.([]any); ok && len(list) == 1 && list[0] == "default" {
		patched["allowService"] = "default"
	}
	return patched
}

// patchAuth folds an authentication sub-object into the accumulated
// Authentication class. The auth source item has no schemaMerge and renames
// type to enabledSourceType; RADIUS servers fold under primary or secondary
// based on their reserved names.
func patchAuth(merge *catalog.SchemaMerge, authClass, authItem map[string]any) (map[string]any, error) {
	if merge == nil {
		patched := mapping.CopyMap(authItem)
		sourceType, _ := patched["type"].(string)
		if sourceType == "active-directory" {
			sourceType = "activeDirectory"
		}
		patched["enabledSourceType"] = sourceType
		delete(patched, "type")
		return patched, nil
	}

	classCopy := map[string]any{}
	if authClass != nil {
		classCopy = mapping.CopyMap(authClass)
	}

	if ciphers, ok := authItem["sslCiphers"].(string); ok {
		authItem["sslCiphers"] = splitToAny(ciphers, ":")
	}

	var patched map[string]any
	name, _ := authItem["name"].(string)
	if strings.Contains(name, catalog.RadiusServerPrefix) {
		server := mapping.CopyMap(authItem)
		delete(server, "name")
		switch name {
		case catalog.RadiusPrimaryServer:
			patched = map[string]any{"primary": server}
		case catalog.RadiusSecondaryServer:
			patched = map[string]any{"secondary": server}
		default:
			patched = map[string]any{}
		}
	} else {
		patched = mapping.CopyMap(authItem)
	}

	return mapping.MapSchemaMerge(classCopy, patched, merge)
}

// patchSys merges the CLI settings object into the System class and converts
// the inactivity timeout from minutes to seconds, with disabled meaning 0.
func patchSys(merge *catalog.SchemaMerge, sysClass, sysItem map[string]any, items []catalog.ConfigItem, opts mapping.Options) (map[string]any, error) {
	if merge == nil {
		return mapping.CopyMap(sysItem), nil
	}

	classCopy := map[string]any{}
	if sysClass != nil {
		classCopy = mapping.CopyMap(sysClass)
	}
	patched, err := mapping.MapSchemaMerge(classCopy, mapping.CopyMap(sysItem), merge)
	if err != nil {
		return nil, err
	}

	timeoutID := mappedID(items, catalog.PathCLI, "properties", "idleTimeout", opts, "")
	if raw, present := sysItem[timeoutID]; present {
		if raw == "disabled" {
			patched[timeoutID] = 0
		} else {
			patched[timeoutID] = toSeconds(patched[timeoutID])
		}
	}
	return patched, nil
}

func toSeconds(value any) int {
	switch typed := value.(type) {
	case float64:
		return int(typed) * 60
	case int:
		return typed * 60
	case string:
		parsed, err := strconv.Atoi(typed)
		if err != nil {
			return 0
		}
		return parsed * 60
	default:
		return 0
	}
}

// patchSSHD expands the sshd include blob into discrete fields.
func patchSSHD(patched map[string]any) {
	include, ok := patched["include"].(string)
	if !ok {
		return
	}
	for _, line := range strings.Split(include, "\n") {
		fields := strings.SplitN(line, " ", 2)
		if len(fields) < 2 {
			continue
		}
		value := fields[1]
		switch fields[0] {
		case "Ciphers":
			patched["ciphers"] = splitToAny(value, ",")
		case "MACs":
			patched["MACS"] = splitToAny(value, ",")
		case "LoginGraceTime":
			patched["loginGraceTime"] = parseIntOrZero(value)
		case "MaxAuthTries":
			patched["maxAuthTries"] = parseIntOrZero(value)
		case "MaxStartups":
			patched["maxStartups"] = value
		case "Protocol":
			patched["protocol"] = parseIntOrZero(value)
		}
	}
	delete(patched, "include")
}

// patchHTTPD splits the cipher suite string and normalizes the allow list.
func patchHTTPD(patched map[string]any) {
	if suite, ok := patched["sslCiphersuite"].(string); ok {
		patched["sslCiphersuite"] = splitToAny(suite, ":")
	}
	allow, present := patched["allow"]
	if !present || allow == nil {
		patched["allow"] = "none"
		return
	}
	if list, ok := allow.([]any); ok {
		for i, entry := range list {
			if entry == "All" {
				list[i] = "all"
			}
		}
	}
}

// patchGSLBGlobals nests the general settings object under a general key.
func patchGSLBGlobals(patched map[string]any) map[string]any {
	return map[string]any{"general": mapping.CopyMap(patched)}
}

// patchGSLBServer converts the monitor string to an array and collapses the
// enabled and disabled fields into a single boolean.
func patchGSLBServer(patched map[string]any, items []catalog.ConfigItem, opts mapping.Options) {
	monitorID := mappedID(items, catalog.PathGSLBServer, "references.virtualServersReference", "monitor", opts, "")
	monitors, _ := patched[monitorID].(string)
	patched[monitorID] = gtmMonitorArray(monitors)
	patched["enabled"] = isEnabledGtmObject(patched)
	delete(patched, "disabled")
}

// patchFirewall drops fullPath, which otherwise shows up in config diffs.
func patchFirewall(item map[string]any) {
	delete(item, "fullPath")
}

// patchGSLBMonitor derives monitorType from the object's kind before kind is
// stripped with the other bookkeeping fields.
func patchGSLBMonitor(item map[string]any) {
	kind, ok := item["kind"].(string)
	if !ok {
		return
	}
	parts := strings.Split(kind, ":")
	if len(parts) > 3 {
		item["monitorType"] = parts[3]
	}
}

func patchGSLBProberPool(patched map[string]any) {
	patched["enabled"] = isEnabledGtmObject(patched)
	delete(patched, "disabled")
}

// patchRoutingBGP renames the nested redistribute name field to
// routingProtocol.
func patchRoutingBGP(patched map[string]any) {
	families, _ := patched["addressFamily"].([]any)
	for _, familyEntry := range families {
		family, ok := familyEntry.(map[string]any)
		if !ok {
			continue
		}
		redistributes, _ := family["redistribute"].([]any)
		for _, redistEntry := range redistributes {
			redist, ok := redistEntry.(map[string]any)
			if !ok {
				continue
			}
			if name, present := redist["name"]; present {
				redist["routingProtocol"] = name
				delete(redist, "name")
			}
		}
	}
}

// patchManagementRoute recovers the full route name from fullPath. The
// device returns only the segment after the last slash when a route name
// itself contains slashes.
func patchManagementRoute(patched map[string]any) {
	fullPath, ok := patched["fullPath"].(string)
	if !ok {
		return
	}
	if _, after, found := strings.Cut(fullPath, catalog.PartitionPrefix); found {
		patched["name"] = after
	}
	delete(patched, "fullPath")
}

// patchVxlanTunnels folds a vxlan profile into its tunnel object and pins
// the tunnel type to vxlan.
func patchVxlanTunnels(item, vxlan map[string]any, translateToNewID bool) {
	if vxlan == nil {
		return
	}
	delete(vxlan, "name")
	if translateToNewID {
		item["tunnelType"] = "vxlan"
	} else {
		item["profile"] = "vxlan"
	}
	merged, err := mapping.MapSchemaMerge(item, vxlan, &catalog.SchemaMerge{Action: "add"})
	if err != nil {
		return
	}
	for key, value := range merged {
		item[key] = value
	}
}

// isEnabledGtmObject resolves GTM objects that express state through both an
// enabled and a disabled field, in either boolean or string form.
func isEnabledGtmObject(obj map[string]any) bool {
	switch enabled := obj["enabled"].(type) {
	case bool:
		return enabled
	case string:
		return strings.ToLower(enabled) == "true"
	}
	switch disabled := obj["disabled"].(type) {
	case bool:
		return !disabled
	case string:
		return strings.ToLower(disabled) == "false"
	}
	return true
}

// gtmMonitorArray splits the device's "a and b" monitor expression into a
// list for diffing.
func gtmMonitorArray(monitors string) []any {
	if monitors == "" {
		return []any{}
	}
	return splitToAny(monitors, " and ")
}

// filterFirewallRuleProps drops rule source and destination keys the
// declaration schema does not model.
func filterFirewallRuleProps(rule map[string]any) {
	allowedSource := []string{"vlans", "addressLists", "portLists"}
	allowedDestination := []string{"addressLists", "portLists"}

	filter := func(obj map[string]any, allowed []string) map[string]any {
		filtered := map[string]any{}
		for _, key := range allowed {
			if value, present := obj[key]; present {
				filtered[key] = value
			}
		}
		return filtered
	}

	if source, ok := rule["source"].(map[string]any); ok {
		rule["source"] = filter(source, allowedSource)
	}
	if destination, ok := rule["destination"].(map[string]any); ok {
		rule["destination"] = filter(destination, allowedDestination)
	}
}

// mappedID resolves a property's declaration-side name. It returns the raw
// id unless translation is requested and the catalog defines a newId. The
// property is looked up on the item at configPath, walking either the
// properties list or a named reference rule-set, optionally descending into
// a transform.
func mappedID(items []catalog.ConfigItem, configPath, propertyPath, id string, opts mapping.Options, transformID string) string {
	if !opts.TranslateToNewID {
		return id
	}

	var item *catalog.ConfigItem
	for i := range items {
		if items[i].Path == configPath {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return id
	}

	var rules []catalog.PropertyRule
	if propertyPath == "properties" {
		rules = item.Properties
	} else if ref, found := strings.CutPrefix(propertyPath, "references."); found {
		rules = item.References[ref]
	}
	if rules == nil {
		return id
	}

	if transformID != "" {
		var transform []catalog.PropertyRule
		for i := range rules {
			if rules[i].ID == transformID {
				transform = rules[i].Transform
				break
			}
		}
		rules = transform
	}

	for i := range rules {
		if rules[i].ID == id {
			if rules[i].NewID != "" {
				return rules[i].NewID
			}
			return id
		}
	}
	return id
}

func splitToAny(value, sep string) []any {
	parts := strings.Split(value, sep)
	out := make([]any, len(parts))
	for i, part := range parts {
		out[i] = part
	}
	return out
}

func parseIntOrZero(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
