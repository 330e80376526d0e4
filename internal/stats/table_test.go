package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zixian-cai/hwgc-soft/internal/addr"
	"github.com/zixian-cai/hwgc-soft/internal/memory"
	"github.com/zixian-cai/hwgc-soft/internal/sim"
	"github.com/zixian-cai/hwgc-soft/internal/snapshot"
	"github.com/zixian-cai/hwgc-soft/internal/topology"
)

func TestCollectAndRenderSmoke(t *testing.T) {
	a := addr.Virtual(0x1000)
	b := addr.Virtual(0x2000)
	objs := []*snapshot.Object{
		{Address: a, References: []addr.Virtual{b}},
		{Address: b},
	}
	snap := snapshot.New(snapshot.OpenJDK, objs, []addr.Virtual{a})

	mapping := addr.NewMapping(addr.DefaultGeometry())
	cfg := sim.Config{
		Mapping:     mapping,
		Topology:    topology.NewLine(4),
		Snapshot:    snap,
		CacheConfig: memory.DefaultCacheConfig(memory.FourKB),
		BankTiming:  memory.DefaultDDR4Timing(),
	}
	gc := sim.New(cfg)
	result, err := gc.Run()
	require.NoError(t, err)

	report := Collect(result, gc, 3.2)
	require.Equal(t, 2, report.ObjectsMarked)
	require.NotEmpty(t, report.Links)

	rendered := Render(report)
	require.True(t, strings.Contains(rendered, "total_ticks"))
	require.True(t, strings.Contains(rendered, "messages_forwarded"))
}
