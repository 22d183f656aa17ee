//go:build !windows
// +build !windows

package internal

import (
	"log/syslog"

	"github.com/MFAshby/stdemuxerhook"
	"github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"

	"github.com/circles-chat/circles/setup/config"
)

func checkSyslogHookParams(params map[string]interface{}) {
	for _, key := range []string{"address", "protocol"} {
		value, ok := params[key]
		if !ok {
			logrus.Fatalf("Expecting a parameter %q for logging hook of type \"syslog\"", key)
		}
		if _, ok := value.(string); !ok {
			logrus.Fatalf("Parameter %q for logging hook of type \"syslog\" should be a string", key)
		}
	}
}

// setupStdLogHook sends warnings and worse to stderr and the rest to stdout.
func setupStdLogHook(level logrus.Level) {
	logrus.AddHook(&logLevelHook{level, stdemuxerhook.New(logrus.StandardLogger())})
}

func setupSyslogHook(hook config.LogrusHook, level logrus.Level, componentName string) {
	syslogHook, err := lSyslog.NewSyslogHook(hook.Params["protocol"].(string), hook.Params["address"].(string), syslog.LOG_INFO, componentName)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to syslog, syslog logging disabled")
		return
	}
	logrus.AddHook(&logLevelHook{level, syslogHook})
}
