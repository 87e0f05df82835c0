package configmgr

import (
	"net/url"
	"strings"

	"github.com/opendevice/onboard/internal/catalog"
)

const (
	hostNameToken   = "{{hostName}}"
	deviceNameToken = "{{deviceName}}"
)

// tokenMap carries the per-run values substituted into catalog paths.
type tokenMap struct {
	hostName   string
	deviceName string
}

// selectProperties lists the property ids a query should ask the device
// for. The name field is always included so results can be keyed.
func selectProperties(rules []catalog.PropertyRule) []string {
	props := make([]string, 0, len(rules)+1)
	seenName := false
	for i := range rules {
		props = append(props, rules[i].ID)
		if rules[i].ID == "name" {
			seenName = true
		}
	}
	if !seenName {
		props = append(props, "name")
	}
	return props
}

// itemPath builds the fetch path for a config item: the selected
// properties plus a server-side partition filter, unless the item declares
// explicit partitions, in which case filtering happens client-side and the
// partition field is selected instead.
func itemPath(item *catalog.ConfigItem, tokens tokenMap) string {
	query := url.Values{}
	selected := strings.Join(selectProperties(item.Properties), ",")

	if len(item.Partitions) > 0 {
		query.Set("$select", selected+",partition")
	} else {
		query.Set("$filter", "partition eq "+catalog.DefaultPartition)
		query.Set("$select", selected)
	}

	path := item.Path + "?" + query.Encode()
	path = strings.Replace(path, hostNameToken, tokens.hostName, 1)
	path = strings.Replace(path, deviceNameToken, tokens.deviceName, 1)
	return path
}

// referencePath rewrites a reference link from a fetched object into a
// fetch path: keeps the link's query, narrows $select to the reference
// rule-set's properties, and trims the management prefix.
func referencePath(link string, rules []catalog.PropertyRule) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	query := parsed.Query()
	selected := selectProperties(rules)
	if len(selected) > 0 {
		query.Set("$select", strings.Join(selected, ","))
	}
	path := parsed.Path + "?" + query.Encode()
	return strings.TrimPrefix(path, "/mgmt")
}
