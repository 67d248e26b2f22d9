package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles the pieces most tests start from: a capturing logger
// and its hook for asserting what was logged.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *test.Hook
}

// NewTestHelper creates a helper with a debug-level logger whose output is
// captured instead of written.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// LoggedMessages returns every captured message at the given level.
func (h *TestHelper) LoggedMessages(level logrus.Level) []string {
	var out []string
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// HasLogged reports whether any captured message contains substr.
func (h *TestHelper) HasLogged(substr string) bool {
	for _, e := range h.Hook.AllEntries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
