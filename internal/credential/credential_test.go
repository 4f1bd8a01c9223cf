package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDDeterministicAndProtocolScoped(t *testing.T) {
	key := "a11111111111111111111111111111a"
	u1 := UUID(key, "vless")
	u2 := UUID(key, "vless")
	u3 := UUID(key, "vmess")
	assert.Equal(t, u1, u2)
	assert.NotEqual(t, u1, u3)
}

func TestPasswordDeterministicAndProtocolScoped(t *testing.T) {
	key := "a11111111111111111111111111111a"
	p1 := Password(key, "trojan")
	p2 := Password(key, "trojan")
	p3 := Password(key, "shadowsocks")
	assert.Equal(t, p1, p2)
	assert.Len(t, p1, 32)
	assert.NotEqual(t, p1, p3)
}

func TestUUIDMatchesSpecExample(t *testing.T) {
	key := ""
	for i := 0; i < 32; i++ {
		key += "a"
	}
	u := UUID(key, "vless")
	assert.Len(t, u, 36)
}
