package stores

import (
	"fmt"

	"socket-relay/config"
	"socket-relay/core"
	"socket-relay/stores/memory"
	"socket-relay/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the room activity store selected by cfg.
func GetStore(cfg config.StorageConfig) (core.ActivityStore, error) {
	var store core.ActivityStore

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		s, err := sqlite.NewActivityStore(cfg.DataSourceName)
		if err != nil {
			return nil, err
		}
		store = s
	case "memory", "":
		store = memory.NewActivityStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
