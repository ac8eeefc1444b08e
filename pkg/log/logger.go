package log

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

func NewContextWithLogger(ctx context.Context, debug bool) (context.Context, func()) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use a diode (ring buffer) for non-blocking logging
	wr := diode.NewWriter(os.Stdout, 1000, 5*time.Millisecond, func(missed int) {
		fmt.Printf("logger dropped %d messages\n", missed)
	})

	output := zerolog.ConsoleWriter{
		Out:        wr,
		TimeFormat: time.DateTime,
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			zerolog.MessageFieldName,
		},
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	// Return context and a cleanup function to close the diode writer
	return log.With().Logger().WithContext(ctx), func() {
		wr.Close()
	}
}

func FromCtx(ctx context.Context) *zerolog.Logger {
	return log.Ctx(ctx)
}
