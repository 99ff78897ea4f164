package db

import (
	"os"
	"testing"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}
