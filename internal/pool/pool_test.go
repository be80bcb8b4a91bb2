package pool

import (
	"testing"

	"github.com/relaymesh/aiproxy/internal/store"
)

func TestQueueKeyIsFamilyScoped(t *testing.T) {
	cases := []struct {
		family    store.CredentialFamily
		requireV3 bool
		want      Queue
	}{
		{store.FamilyCloudCode, false, "POOL:cloud_code:general"},
		{store.FamilyCloudCode, true, "POOL:cloud_code:v3"},
		{store.FamilyAntigravity, false, "POOL:antigravity:general"},
		{store.FamilyAntigravity, true, "POOL:antigravity:v3"},
	}
	for _, c := range cases {
		if got := queueKey(c.family, c.requireV3); got != c.want {
			t.Errorf("queueKey(%s, %v) = %s, want %s", c.family, c.requireV3, got, c.want)
		}
	}
}

func TestQueueKeyNeverMixesFamilies(t *testing.T) {
	cloudCode := queueKey(store.FamilyCloudCode, false)
	antigravity := queueKey(store.FamilyAntigravity, false)
	if cloudCode == antigravity {
		t.Fatal("cloud_code and antigravity must never share a queue key")
	}
}
