package pomelo

import (
	"os"

	"github.com/phuslu/log"

	"github.com/pomelodb/pomelo/recman"
)

// Allocation strategies supported.
const (
	BestFit  StrategyType = 0
	FirstFit StrategyType = 1
	NextFit  StrategyType = 2
)

var defaultOptions = Options{
	Strategy:  BestFit,
	ReadOnly:  false,
	FileMode:  0664,
	CacheSize: 1 << 20,
	Log: log.Logger{
		Level: log.InfoLevel,
		Writer: &log.ConsoleWriter{
			ColorOutput:    false,
			EndWithMessage: true,
		},
	},
}

// Options represents configuration settings for a pomelo store.
type Options struct {
	// Options applicable only during creation of the store file.
	PageSize int
	MaxSlots int
	FileMode os.FileMode

	Strategy StrategyType
	Verify   bool
	ReadOnly bool

	// CacheSize is the budget (in bytes) of the read-through record
	// cache. Zero or negative disables caching.
	CacheSize int64

	Log log.Logger
}

// StrategyType selects the space-allocation policy used by the store.
type StrategyType int

func (st StrategyType) strategy() recman.Strategy {
	switch st {
	case FirstFit:
		return recman.NewFirstFit()
	case NextFit:
		return recman.NewNextFit()
	default:
		return recman.NewBestFit()
	}
}

func (st StrategyType) String() string {
	switch st {
	case FirstFit:
		return "first-fit"
	case NextFit:
		return "next-fit"
	default:
		return "best-fit"
	}
}
