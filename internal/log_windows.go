package internal

import (
	"github.com/MFAshby/stdemuxerhook"
	"github.com/sirupsen/logrus"

	"github.com/circles-chat/circles/setup/config"
)

func checkSyslogHookParams(params map[string]interface{}) {
	logrus.Fatalf("Logging hook of type \"syslog\" is not supported on Windows")
}

func setupStdLogHook(level logrus.Level) {
	logrus.AddHook(&logLevelHook{level, stdemuxerhook.New(logrus.StandardLogger())})
}

func setupSyslogHook(hook config.LogrusHook, level logrus.Level, componentName string) {}
