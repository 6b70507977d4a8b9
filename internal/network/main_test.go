package network

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/banshee-data/freed-tools/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.Mute()
	goleak.VerifyTestMain(m)
}
