package cache

import "testing"

func TestKeys(t *testing.T) {
	if got := SyncLeaseKey(42); got != "sync_lease:42" {
		t.Errorf("Unexpected lease key %s", got)
	}

	if got := UserDepositsKey(42, "0xtoken", 50, 100); got != "deposits:42:0xtoken:50:100" {
		t.Errorf("Unexpected deposits key %s", got)
	}

	if got := UserDepositsPattern(42); got != "deposits:42:*" {
		t.Errorf("Unexpected deposits pattern %s", got)
	}
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	c := &RedisCache{prefix: "deposit-tracker:"}

	if got := c.key(KeyStats); got != "deposit-tracker:stats:global" {
		t.Errorf("Unexpected namespaced key %s", got)
	}
	if got := c.key(UserDepositsPattern(7)); got != "deposit-tracker:deposits:7:*" {
		t.Errorf("Unexpected namespaced pattern %s", got)
	}

	bare := &RedisCache{}
	if got := bare.key(SyncLeaseKey(7)); got != "sync_lease:7" {
		t.Errorf("Unexpected key without prefix %s", got)
	}
}
