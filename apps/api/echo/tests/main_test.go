package tests

import (
	"log"
	"os"
	"testing"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	logsvc "github.com/trezcool/academia/services/logger"
)

func TestMain(m *testing.M) {
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "TEST : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), core.NewTestConfig())

	core.ParseEmailTemplates(logger)
	user.LoadCommonPasswords(logger)

	os.Exit(m.Run())
}
