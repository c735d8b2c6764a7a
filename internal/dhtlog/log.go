// Package dhtlog centralizes structured logging for the node, the way the
// teacher's logger/glog package centralizes verbosity-gated logging, but
// backed by logrus instead of a hand-rolled glog clone.
package dhtlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	root *logrus.Logger
)

func base() *logrus.Logger {
	once.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		root.SetLevel(logrus.InfoLevel)
	})
	return root
}

// SetLevel adjusts the minimum emitted level across the whole process.
func SetLevel(level logrus.Level) {
	base().SetLevel(level)
}

// New returns a component-scoped logger, analogous to logger.NewLogger("discover")
// in the teacher's package.
func New(component string) *logrus.Entry {
	return base().WithField("component", component)
}
