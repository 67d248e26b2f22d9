package main

import (
	"bytes"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/testutils"
	"github.com/srg/bluekit/pkg/config"
)

// Test device identity the scripted daemon resolves
const (
	testDeviceAddress = "AA:BB:CC:DD:EE:FF"
	testDeviceName    = "headset"
)

// CommandTestSuite wires the command tree to a scripted daemon. Command
// test suites embed it and drive commands the way a user would.
type CommandTestSuite struct {
	suite.Suite

	Daemon *testutils.Daemon

	origConnect func(*config.Config, *logrus.Logger) (bus.Connection, error)
}

// SetupTest gives every test a fresh daemon; each command run closes the
// bus it was handed.
func (s *CommandTestSuite) SetupTest() {
	s.Daemon = testutils.NewDaemon()
	s.origConnect = connectBus
	connectBus = func(*config.Config, *logrus.Logger) (bus.Connection, error) {
		return s.Daemon.Bus, nil
	}
	resetCommandFlags()
}

func (s *CommandTestSuite) TearDownTest() {
	connectBus = s.origConnect
}

// InstallTestDevice scripts the stock headset device on the daemon.
func (s *CommandTestSuite) InstallTestDevice() *testutils.FakeObject {
	props := testutils.CreateDeviceProps(testDeviceName, testDeviceAddress).Build()
	return s.Daemon.InstallDevice(testDeviceAddress, props)
}

// CaptureStdout executes fn while capturing stdout, returns captured output.
// Stdout is restored even if fn panics.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}

// RunCommand mounts cmd on a fresh parent and executes it, returning
// everything it printed to stdout and to the command writers.
func (s *CommandTestSuite) RunCommand(cmd *cobra.Command, args ...string) (string, error) {
	root := &cobra.Command{Use: "bluekit"}
	root.AddCommand(cmd)

	var bufOut string
	var err error
	stdout := s.CaptureStdout(func() { bufOut, err = executeCommand(root, args...) })
	return stdout + bufOut, err
}

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// resetCommandFlags restores the flag-bound package variables; cobra keeps
// parsed values across executions.
func resetCommandFlags() {
	adaptersFormat = "table"
	devicesAdapter, devicesFormat = "", "table"
	infoAdapter, infoFormat = "", "table"
	discoverAdapter, discoverFormat = "", "table"
	discoverDuration = 0
	discoverServices, discoverAllowList, discoverBlockList = nil, nil, nil
	discoverWatch = false
	trustAdapter, trustOff = "", false
	blockAdapter, blockOff = "", false
	aliasAdapter = ""
	servicesAdapter, servicesFormat = "", "table"
	disconnectAdapter = ""
	watchAdapter = ""

	// cobra defines the help flag lazily and leaves it set after a --help
	// run; clear it so later executions run the command again.
	for _, c := range []*cobra.Command{
		adaptersCmd, devicesCmd, infoCmd, discoverCmd, trustCmd,
		blockCmd, aliasCmd, servicesCmd, disconnectCmd, watchCmd,
	} {
		if f := c.Flags().Lookup("help"); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
}
