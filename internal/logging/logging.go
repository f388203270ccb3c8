package logging

import (
	"go.uber.org/zap"
)

var logger = zap.NewNop().Sugar()

// Init configures the process-wide logger. Call once from main.
func Init(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "console"
	l, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	logger = l.Sugar()
}

// L returns the current sugared logger. Defaults to a nop logger so
// library code and tests can log without initialization.
func L() *zap.SugaredLogger {
	return logger
}
