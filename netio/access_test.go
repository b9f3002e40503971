package netio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ParseCIDRList_expandsTrailingOctet(t *testing.T) {
	dl, err := ParseCIDRList("10/8, 192.168.1.0/24")
	assert.NoError(t, err)
	assert.True(t, dl.Denied(net.ParseIP("10.1.2.3")))
	assert.True(t, dl.Denied(net.ParseIP("192.168.1.42")))
	assert.False(t, dl.Denied(net.ParseIP("8.8.8.8")))
}

func Test_ParseCIDRList_emptyIsNeverDenied(t *testing.T) {
	dl, err := ParseCIDRList("")
	assert.NoError(t, err)
	assert.False(t, dl.Denied(net.ParseIP("1.2.3.4")))
}

func Test_ParseCIDRList_rejectsGarbage(t *testing.T) {
	_, err := ParseCIDRList("not-a-cidr")
	assert.Error(t, err)
}

func Test_UniqueIPSet_countsDistinctPairsOnly(t *testing.T) {
	u := NewUniqueIPSet()
	assert.True(t, u.Observe("1.2.3.4", "RAW_OUT", 1))
	assert.False(t, u.Observe("1.2.3.4", "RAW_OUT", 2))
	assert.True(t, u.Observe("1.2.3.4", "SBS_OUT", 3))
	assert.Equal(t, 2, u.Count())
}
