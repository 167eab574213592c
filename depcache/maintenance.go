package depcache

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

const DefaultMaintenanceSpec = "@every 1h"

// RegisterMaintenance schedules periodic index compaction so cache keys
// whose values expired out of the store do not linger in the index.
func RegisterMaintenance(cron types.CronManager, cache types.CacheManager, logger types.Logger, spec string) error {
	if spec == "" {
		spec = DefaultMaintenanceSpec
	}

	return cron.Add("depcache_index_compaction", spec, func() {
		if err := cache.CompactIndex(); err != nil {
			logger.Error("Dependency index compaction failed", zap.Error(err))
		}
	})
}
