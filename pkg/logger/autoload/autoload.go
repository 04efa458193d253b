// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of being imported.
package autoload

import (
	configx "github.com/barefootzenith/refund-agent/pkg/config"
	logx "github.com/barefootzenith/refund-agent/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
