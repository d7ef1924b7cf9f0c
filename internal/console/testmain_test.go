package console_test

import (
	"os"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// console loops must stop on Unmount
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}
