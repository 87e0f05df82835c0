// Package configmgr retrieves the live configuration of a device and shapes
// it into declaration form so it can be diffed against what a declaration
// asks for. Retrieval walks the config item catalog, queries each item's
// management path, follows references, and applies per-class patches before
// handing back a parsed snapshot.
package configmgr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/device"
	"github.com/opendevice/onboard/internal/mapping"
)

// Manager fetches and assembles the current device configuration.
type Manager struct {
	items     []catalog.ConfigItem
	transport device.Transport
	store     Store
	logger    *zap.Logger
}

// Result is a retrieval snapshot. CurrentConfig holds the live state in
// declaration form; OriginalConfig is the first-seen state kept for
// rollback, updated with the merge rules in original.go.
type Result struct {
	ConfigID       string
	DeviceVersion  string
	CurrentConfig  map[string]any
	OriginalConfig map[string]any
}

// New builds a Manager over the given catalog, transport, and original
// config store.
func New(cat *catalog.Catalog, transport device.Transport, store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		items:     cat.Items(),
		transport: transport,
		store:     store,
		logger:    logger,
	}
}

// itemResult is one first-wave fetch. skipped marks items whose required
// modules are not provisioned.
type itemResult struct {
	skipped bool
	value   any
}

// refRequest is a queued reference fetch together with the information
// needed to attach its result to the assembled config.
type refRequest struct {
	path        string
	property    string
	schemaClass string
	name        string
	rules       []catalog.PropertyRule
	mergePath   []string
}

// Retrieve queries the device for every catalog item and assembles the
// current configuration. priorCurrent is the previously retrieved snapshot,
// used to keep tracking DB variables a new declaration no longer mentions.
func (m *Manager) Retrieve(ctx context.Context, declaration, priorCurrent map[string]any, opts mapping.Options) (*Result, error) {
	dbVars := dbVarsOfInterest(declaration, priorCurrent)

	provisioned, err := m.provisionedModules(ctx)
	if err != nil {
		return nil, err
	}

	info, err := device.FetchInfo(ctx, m.transport)
	if err != nil {
		return nil, fmt.Errorf("fetching device info: %w", err)
	}

	tokens, err := m.tokenMap(ctx, info.Hostname)
	if err != nil {
		return nil, err
	}

	results, err := m.fetchItems(ctx, provisioned, info.Version, tokens)
	if err != nil {
		return nil, err
	}

	common := map[string]any{}
	var refs []refRequest
	for i := range m.items {
		if err := m.assembleItem(&m.items[i], results[i], declaration, common, dbVars, info.Version, opts, &refs); err != nil {
			return nil, err
		}
	}

	if err := m.resolveReferences(ctx, refs, common, info.Version, opts); err != nil {
		return nil, err
	}

	current := map[string]any{
		"parsed": true,
		"Common": common,
	}
	m.postMerge(current, opts)

	original, err := m.mergeOriginal(ctx, info.MachineID, current, info.Version)
	if err != nil {
		return nil, err
	}

	return &Result{
		ConfigID:       info.MachineID,
		DeviceVersion:  info.Version,
		CurrentConfig:  current,
		OriginalConfig: original,
	}, nil
}

// dbVarsOfInterest collects the DB variable names worth keeping: whatever
// the declaration sets plus whatever an earlier retrieval already tracked.
// The device has thousands of variables and no server-side name filter, so
// the full listing is trimmed to this set.
func dbVarsOfInterest(declaration, priorCurrent map[string]any) map[string]bool {
	vars := map[string]bool{}
	if prior, ok := priorCurrent["Common"].(map[string]any); ok {
		if dbVariables, ok := prior["DbVariables"].(map[string]any); ok {
			for name := range dbVariables {
				if name != catalog.ClassKey {
					vars[name] = true
				}
			}
		}
	}
	if common, ok := declaration["Common"].(map[string]any); ok {
		for _, entry := range common {
			obj, ok := entry.(map[string]any)
			if !ok || obj[catalog.ClassKey] != "DbVariables" {
				continue
			}
			for name := range obj {
				if name != catalog.ClassKey {
					vars[name] = true
				}
			}
		}
	}
	return vars
}

func (m *Manager) provisionedModules(ctx context.Context) ([]string, error) {
	raw, err := m.transport.List(ctx, catalog.PathProvision, &device.RequestOptions{Retry: device.ShortRetry})
	if err != nil {
		return nil, fmt.Errorf("fetching provisioning: %w", err)
	}
	entries, _ := raw.([]any)
	var modules []string
	for _, entry := range entries {
		module, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if module["level"] != "none" {
			if name, ok := module["name"].(string); ok {
				modules = append(modules, name)
			}
		}
	}
	return modules, nil
}

// tokenMap resolves the path tokens from the cluster device list. Exactly
// one cluster record must match the device's hostname.
func (m *Manager) tokenMap(ctx context.Context, hostname string) (tokenMap, error) {
	raw, err := m.transport.List(ctx, catalog.PathCMDevice, &device.RequestOptions{Retry: device.ShortRetry})
	if err != nil {
		return tokenMap{}, fmt.Errorf("fetching cluster devices: %w", err)
	}
	entries, _ := raw.([]any)
	var matches []map[string]any
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if obj["hostname"] == hostname {
			matches = append(matches, obj)
		}
	}
	if len(matches) != 1 {
		err := &IdentityAmbiguityError{Hostname: hostname, Matches: len(matches)}
		m.logger.Error("cannot resolve device identity", zap.Error(err))
		return tokenMap{}, err
	}
	name, _ := matches[0]["name"].(string)
	return tokenMap{hostName: hostname, deviceName: name}, nil
}

// fetchItems runs the first query wave. Items whose required modules are
// not provisioned are skipped without a device round trip; the rest are
// fetched concurrently, preserving catalog order in the result slice.
func (m *Manager) fetchItems(ctx context.Context, provisioned []string, deviceVersion string, tokens tokenMap) ([]itemResult, error) {
	results := make([]itemResult, len(m.items))
	errs := make([]error, len(m.items))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := range m.items {
		item := &m.items[i]
		if len(item.RequiredModules) > 0 && !checkRequiredModules(item.RequiredModules, provisioned, deviceVersion) {
			results[i] = itemResult{skipped: true}
			continue
		}

		wg.Add(1)
		go func(i int, item *catalog.ConfigItem) {
			defer wg.Done()
			value, err := m.transport.List(ctx, itemPath(item, tokens), &device.RequestOptions{
				Retry:  device.ShortRetry,
				Silent: item.Silent,
			})
			if err != nil {
				errs[i] = fmt.Errorf("fetching %s: %w", item.Path, err)
				cancel()
				return
			}
			results[i] = itemResult{value: value}
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// assembleItem folds one fetch result into the Common config, applying the
// per-class patches the declaration schema needs.
func (m *Manager) assembleItem(item *catalog.ConfigItem, result itemResult, declaration, common map[string]any, dbVars map[string]bool, deviceVersion string, opts mapping.Options, refs *[]refRequest) error {
	schemaClass := item.SchemaClass

	value := result.value
	if item.EnforceArray {
		if _, ok := value.([]any); !ok {
			// Some firmware returns an object or nothing instead of an
			// empty collection.
			value = []any{}
		}
	}

	if result.skipped {
		if _, present := common[schemaClass]; !present && classPresent(declaration, schemaClass) {
			common[schemaClass] = map[string]any{}
		}
		return nil
	}

	if schemaClass == "" {
		obj, _ := value.(map[string]any)
		for key, entry := range obj {
			common[key] = entry
		}
		return nil
	}

	if collection, ok := value.([]any); ok {
		if len(collection) == 0 {
			if _, present := common[schemaClass]; !present {
				common[schemaClass] = map[string]any{}
			}
			return nil
		}
		for _, entry := range collection {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if shouldIgnore(obj, item.Ignore) {
				if _, present := common[schemaClass]; !present {
					common[schemaClass] = map[string]any{}
				}
				continue
			}
			if !inPartitions(obj, item.Partitions) {
				continue
			}
			if err := m.assembleCollectionEntry(item, obj, common, dbVars, deviceVersion, opts, refs); err != nil {
				return err
			}
		}
		return nil
	}

	obj, ok := value.(map[string]any)
	if !ok || shouldIgnore(obj, item.Ignore) {
		return nil
	}
	return m.assembleSingleObject(item, obj, common, deviceVersion, opts, refs)
}

func (m *Manager) assembleCollectionEntry(item *catalog.ConfigItem, obj, common map[string]any, dbVars map[string]bool, deviceVersion string, opts mapping.Options, refs *[]refRequest) error {
	schemaClass := item.SchemaClass

	if schemaClass == "Route" && obj["partition"] == "LOCAL_ONLY" {
		obj["localOnly"] = true
	}
	// The partition would otherwise show up in config diffs.
	delete(obj, "partition")

	switch schemaClass {
	case "FirewallPolicy", "FirewallAddressList", "FirewallPortList":
		patchFirewall(obj)
	case "GSLBMonitor":
		patchGSLBMonitor(obj)
	case "RoutingBGP":
		patchRoutingBGP(obj)
	case "ManagementRoute":
		patchManagementRoute(obj)
	}

	patched := removeUnusedKeys(obj, item.Nameless)
	mappedValue, err := mapping.MapItem(patched, *item, deviceVersion, opts)
	if err != nil {
		return err
	}

	name, _ := obj["name"].(string)
	name = strings.TrimPrefix(name, catalog.PartitionPrefix)

	mapped, isObject := mappedValue.(map[string]any)
	if !isObject {
		// singleValue items collapse to a scalar keyed by object name.
		if item.SchemaClass == "DbVariables" && !dbVars[name] {
			return nil
		}
		class, ok := common[item.SchemaClass].(map[string]any)
		if !ok {
			class = map[string]any{}
			common[item.SchemaClass] = class
		}
		class[name] = mappedValue
		return nil
	}

	store := true
	switch schemaClass {
	case "SnmpTrapDestination", "RemoteAuthRole":
		mapped["name"] = name
	case "SnmpUser", "SnmpCommunity":
		// Inspect mode keeps the translated name from the forward mapping.
		if !opts.TranslateToNewID {
			mapped["name"] = name
		}
	case "SelfIp":
		mapped = patchSelfIp(mapped)
	case "DbVariables":
		if !dbVars[name] {
			store = false
		}
	case "Authentication":
		authClass, _ := common[schemaClass].(map[string]any)
		merged, err := patchAuth(item.SchemaMerge, authClass, mapped)
		if err != nil {
			return err
		}
		common[schemaClass] = merged
		store = false
	case "MAC_Masquerade":
		mapped["trafficGroup"] = name
	case "GSLBServer":
		patchGSLBServer(mapped, m.items, opts)
	case "GSLBProberPool":
		patchGSLBProberPool(mapped)
	}

	if store {
		class, ok := common[schemaClass].(map[string]any)
		if !ok {
			class = map[string]any{}
			common[schemaClass] = class
		}
		class[name] = mapped
	}

	m.collectReferences(item, obj, opts, refs)
	return nil
}

func (m *Manager) assembleSingleObject(item *catalog.ConfigItem, obj, common map[string]any, deviceVersion string, opts mapping.Options, refs *[]refRequest) error {
	schemaClass := item.SchemaClass

	patched := removeUnusedKeys(obj, item.Nameless)
	mappedValue, err := mapping.MapItem(patched, *item, deviceVersion, opts)
	if err != nil {
		return err
	}
	mapped, isObject := mappedValue.(map[string]any)
	if !isObject {
		common[schemaClass] = mappedValue
		return nil
	}

	result := mapped
	switch schemaClass {
	case "Authentication":
		authClass, _ := common[schemaClass].(map[string]any)
		result, err = patchAuth(item.SchemaMerge, authClass, mapped)
		if err != nil {
			return err
		}
	case "System":
		sysClass, _ := common[schemaClass].(map[string]any)
		result, err = patchSys(item.SchemaMerge, sysClass, mapped, m.items, opts)
		if err != nil {
			return err
		}
	case "SyslogRemoteServer":
		servers, _ := mapped["remoteServers"].([]any)
		for _, entry := range servers {
			server, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			serverName, _ := server["name"].(string)
			serverName = strings.TrimPrefix(serverName, catalog.PartitionPrefix)
			server["name"] = serverName
			mapped[serverName] = mapping.CopyMap(server)
		}
		delete(mapped, "remoteServers")
	case "SSHD":
		patchSSHD(mapped)
	case "HTTPD":
		patchHTTPD(mapped)
	case "Disk":
		if raw, ok := mapped["apiRawValues"].(map[string]any); ok {
			sizes := map[string]any{}
			for key, entry := range raw {
				if size, ok := entry.(string); ok {
					sizes[key] = parseIntOrZero(strings.TrimSpace(size))
				}
			}
			result = sizes
		}
	case "GSLBGlobals":
		result = patchGSLBGlobals(mapped)
	}

	common[schemaClass] = result
	m.collectReferences(item, obj, opts, refs)
	return nil
}

// collectReferences queues follow-up fetches for any property of a raw
// object that the catalog declares a reference rule-set for.
func (m *Manager) collectReferences(item *catalog.ConfigItem, obj map[string]any, opts mapping.Options, refs *[]refRequest) {
	for property, rules := range item.References {
		refObj, ok := obj[property].(map[string]any)
		if !ok {
			continue
		}
		link, ok := refObj["link"].(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSuffix(property, "Reference")

		target := trimmed
		if opts.TranslateToNewID {
			for i := range item.Properties {
				if item.Properties[i].ID == trimmed && item.Properties[i].NewID != "" {
					target = item.Properties[i].NewID
					break
				}
			}
		}

		var mergePath []string
		if item.SchemaMerge != nil {
			mergePath = item.SchemaMerge.Path
		}
		name, _ := obj["name"].(string)
		*refs = append(*refs, refRequest{
			path:        referencePath(link, rules),
			property:    target,
			schemaClass: item.SchemaClass,
			name:        name,
			rules:       rules,
			mergePath:   mergePath,
		})
	}
}

// resolveReferences fetches all queued references concurrently and merges
// the mapped results into their parent objects.
func (m *Manager) resolveReferences(ctx context.Context, refs []refRequest, common map[string]any, deviceVersion string, opts mapping.Options) error {
	if len(refs) == 0 {
		return nil
	}

	values := make([]any, len(refs))
	errs := make([]error, len(refs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := m.transport.List(ctx, refs[i].path, &device.RequestOptions{Retry: device.ShortRetry})
			if err != nil {
				errs[i] = fmt.Errorf("fetching reference %s: %w", refs[i].path, err)
				cancel()
				return
			}
			values[i] = value
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for i := range refs {
		ref := refs[i]
		target := m.referenceTarget(ref, common)
		if target == nil {
			continue
		}

		patchReference := func(raw any) (map[string]any, error) {
			obj, ok := raw.(map[string]any)
			if !ok {
				return map[string]any{}, nil
			}
			return mapping.MapForward(removeUnusedKeys(obj, false), ref.rules, deviceVersion, opts)
		}

		if collection, ok := values[i].([]any); ok {
			mapped := make([]any, 0, len(collection))
			for _, raw := range collection {
				patched, err := patchReference(raw)
				if err != nil {
					return err
				}
				mapped = append(mapped, patched)
			}
			target[ref.property] = mapped
		} else {
			patched, err := patchReference(values[i])
			if err != nil {
				return err
			}
			target[ref.property] = patched
		}
	}
	return nil
}

// referenceTarget finds the object a reference result belongs on: down the
// schema merge path when the item merges into a parent class, by name for
// collection entries, or the class object itself.
func (m *Manager) referenceTarget(ref refRequest, common map[string]any) map[string]any {
	class, ok := common[ref.schemaClass].(map[string]any)
	if !ok {
		return nil
	}
	if len(ref.mergePath) > 0 {
		current := class
		for _, key := range ref.mergePath {
			next, ok := current[key].(map[string]any)
			if !ok {
				return nil
			}
			current = next
		}
		return current
	}
	if ref.name != "" {
		name := strings.TrimPrefix(ref.name, catalog.PartitionPrefix)
		if named, ok := class[name].(map[string]any); ok {
			return named
		}
		return nil
	}
	return class
}
