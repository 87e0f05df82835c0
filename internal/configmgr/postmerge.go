package configmgr

import (
	"sort"
	"strings"

	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/mapping"
)

// postMerge runs the shaping passes that need the reference results already
// merged in: GTM member normalization, BGP list renames, firewall rule
// filtering, and VXLAN tunnel folding.
func (m *Manager) postMerge(current map[string]any, opts mapping.Options) {
	common, ok := current["Common"].(map[string]any)
	if !ok {
		return
	}

	m.patchProberPoolMembers(common)
	m.patchRoutingBGPLists(common, opts)
	m.patchGSLBServerMembers(common, opts)
	patchFirewallRules(common)
	patchTunnels(common, opts.TranslateToNewID)
}

func (m *Manager) patchProberPoolMembers(common map[string]any) {
	pools, ok := common["GSLBProberPool"].(map[string]any)
	if !ok {
		return
	}
	for _, entry := range pools {
		pool, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		members, _ := pool["members"].([]any)
		for _, memberEntry := range members {
			member, ok := memberEntry.(map[string]any)
			if !ok {
				continue
			}
			member["enabled"] = isEnabledGtmObject(member)
			delete(member, "disabled")
		}
		sortByNumericKey(members, "order")
	}
}

func (m *Manager) patchRoutingBGPLists(common map[string]any, opts mapping.Options) {
	routers, ok := common["RoutingBGP"].(map[string]any)
	if !ok {
		return
	}
	nameID := mappedID(m.items, catalog.PathRoutingBGP, "references.neighborReference", "name", opts, "")
	for _, entry := range routers {
		router, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if neighbors, ok := router["neighbor"].([]any); ok {
			mapping.SortByStringKey(neighbors, nameID)
			router["neighbors"] = copySlice(neighbors)
			delete(router, "neighbor")
		}
		if peerGroups, ok := router["peerGroup"].([]any); ok {
			router["peerGroups"] = copySlice(peerGroups)
			delete(router, "peerGroup")
		}
	}
}

// patchGSLBServerMembers reshapes dereferenced GSLB server devices and
// virtual servers. A device entry keeps only the first address and its
// translation; a virtual server's destination splits at the last dot or
// colon into address and port.
func (m *Manager) patchGSLBServerMembers(common map[string]any, opts mapping.Options) {
	servers, ok := common["GSLBServer"].(map[string]any)
	if !ok {
		return
	}

	deviceNameID := mappedID(m.items, catalog.PathGSLBServer, "references.devicesReference", "name", opts, "addresses")
	deviceTranslationID := mappedID(m.items, catalog.PathGSLBServer, "references.devicesReference", "translation", opts, "addresses")
	serverTranslationID := mappedID(m.items, catalog.PathGSLBServer, "references.virtualServersReference", "translationAddress", opts, "")
	descriptionID := mappedID(m.items, catalog.PathGSLBServer, "references.virtualServersReference", "description", opts, "")
	monitorID := mappedID(m.items, catalog.PathGSLBServer, "references.virtualServersReference", "monitor", opts, "")

	for _, entry := range servers {
		server, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		devices, _ := server["devices"].([]any)
		patchedDevices := make([]any, 0, len(devices))
		for _, deviceEntry := range devices {
			deviceObj, ok := deviceEntry.(map[string]any)
			if !ok {
				continue
			}
			patchedDevice := map[string]any{}
			if addresses, ok := deviceObj["addresses"].([]any); ok && len(addresses) > 0 {
				if first, ok := addresses[0].(map[string]any); ok {
					patchedDevice[deviceNameID] = first[deviceNameID]
					patchedDevice[deviceTranslationID] = first[deviceTranslationID]
				}
			}
			patchedDevice[descriptionID] = deviceObj[descriptionID]
			patchedDevices = append(patchedDevices, patchedDevice)
		}
		server["devices"] = patchedDevices

		virtualServers, _ := server["virtualServers"].([]any)
		for _, vsEntry := range virtualServers {
			vs, ok := vsEntry.(map[string]any)
			if !ok {
				continue
			}
			if destination, ok := vs["destination"].(string); ok {
				address, port := splitDestination(destination)
				vs["address"] = address
				vs["port"] = port
			}
			monitors, _ := vs[monitorID].(string)
			vs[monitorID] = gtmMonitorArray(monitors)
			vs["enabled"] = isEnabledGtmObject(vs)
			delete(vs, "disabled")
			delete(vs, "destination")
			if vs[serverTranslationID] == "none" {
				delete(vs, serverTranslationID)
			}
		}
	}
}

// splitDestination breaks an address:port expression at the last dot or
// colon, covering both IPv4 dotted ports and IPv6 colon ports.
func splitDestination(destination string) (string, int) {
	idx := strings.LastIndexAny(destination, ".:")
	if idx < 0 {
		return destination, 0
	}
	return destination[:idx], parseIntOrZero(destination[idx+1:])
}

func patchFirewallRules(common map[string]any) {
	if policies, ok := common["FirewallPolicy"].(map[string]any); ok {
		for _, entry := range policies {
			policy, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			rules, _ := policy["rules"].([]any)
			for _, ruleEntry := range rules {
				if rule, ok := ruleEntry.(map[string]any); ok {
					filterFirewallRuleProps(rule)
				}
			}
		}
	}

	if mgmt, ok := common["ManagementIpFirewall"].(map[string]any); ok {
		rules, _ := mgmt["rules"].([]any)
		for _, ruleEntry := range rules {
			if rule, ok := ruleEntry.(map[string]any); ok {
				filterFirewallRuleProps(rule)
			}
		}
	}
}

// patchTunnels folds every name_vxlan profile into its tunnel and removes
// standalone VXLAN profiles, identified by their encapsulationType field,
// so they never show up in a diff.
func patchTunnels(common map[string]any, translateToNewID bool) {
	tunnels, ok := common["Tunnel"].(map[string]any)
	if !ok {
		return
	}

	var remove []string
	for name, entry := range tunnels {
		tunnel, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if vxlan, ok := tunnels[name+"_vxlan"].(map[string]any); ok {
			patchVxlanTunnels(tunnel, vxlan, translateToNewID)
		} else if _, present := tunnel["encapsulationType"]; present {
			remove = append(remove, name)
		}
	}
	for _, name := range remove {
		delete(tunnels, name)
	}
}

func sortByNumericKey(items []any, key string) {
	numberAt := func(item any) float64 {
		obj, ok := item.(map[string]any)
		if !ok {
			return 0
		}
		switch value := obj[key].(type) {
		case float64:
			return value
		case int:
			return float64(value)
		default:
			return 0
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return numberAt(items[i]) < numberAt(items[j])
	})
}

func copySlice(items []any) []any {
	copied := make([]any, len(items))
	for i, item := range items {
		if obj, ok := item.(map[string]any); ok {
			copied[i] = mapping.CopyMap(obj)
		} else {
			copied[i] = item
		}
	}
	return copied
}
