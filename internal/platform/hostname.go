package platform

import "strings"

// SiteAlias derives the public host name of a site from its directory name.
// Example: SiteAlias("blog", ".test") == "blog.test"
func SiteAlias(siteName, tld string) string {
	if tld != "" && !strings.HasPrefix(tld, ".") {
		tld = "." + tld
	}
	return strings.ToLower(siteName) + tld
}

// ServiceKey generates the tracking key for an auxiliary service.
// Example: ServiceKey("database", "postgresql") == "database-postgresql"
func ServiceKey(category, name string) string {
	return category + "-" + name
}
