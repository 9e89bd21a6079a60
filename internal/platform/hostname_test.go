package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteAlias(t *testing.T) {
	assert.Equal(t, "blog.test", SiteAlias("blog", ".test"))
}

func TestSiteAlias_LowercasesName(t *testing.T) {
	assert.Equal(t, "myshop.test", SiteAlias("MyShop", ".test"))
}

func TestSiteAlias_TLDWithoutDot(t *testing.T) {
	assert.Equal(t, "blog.localhost", SiteAlias("blog", "localhost"))
}

func TestServiceKey(t *testing.T) {
	assert.Equal(t, "database-postgresql", ServiceKey("database", "postgresql"))
	assert.Equal(t, "broadcast-blog", ServiceKey("broadcast", "blog"))
}
