package config

import "os"

func IsDebug() bool {
	return os.Getenv("MEMTIER_DEBUG") == "1"
}
