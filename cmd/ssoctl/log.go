package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

func newLogger(out io.Writer, disableTimestamp bool, logLevelString string) (logrus.FieldLogger, error) {
	logLevel, err := logrus.ParseLevel(logLevelString)
	if err != nil {
		return nil, err
	}

	return &logrus.Logger{
		Out: out,
		Formatter: &logrus.TextFormatter{
			DisableTimestamp: disableTimestamp,
		},
		Hooks: make(logrus.LevelHooks),
		Level: logLevel,
	}, nil
}
