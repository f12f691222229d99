package db

import (
	"testing"
)

func TestPoolStats_HealthyFollowsConns(t *testing.T) {
	healthy := &PoolStats{TotalConns: 10, IdleConns: 5, MaxConns: 20, Healthy: true}
	if !healthy.Healthy {
		t.Error("expected Healthy true with live connections")
	}

	drained := &PoolStats{TotalConns: 0, MaxConns: 20, Healthy: false}
	if drained.Healthy {
		t.Error("expected Healthy false when the pool has no connections")
	}
}
