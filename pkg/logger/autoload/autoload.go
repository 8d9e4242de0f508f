// Package autoload configures the global logger from LOG_* variables on import.
package autoload

import (
	configx "github.com/tanpawarit/servicesaver/pkg/config"
	logx "github.com/tanpawarit/servicesaver/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG", configx.WithoutFlags())
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
