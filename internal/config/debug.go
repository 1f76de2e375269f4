package config

import "os"

func IsDebug() bool {
	return os.Getenv("THREADBOT_DEBUG") == "1"
}
